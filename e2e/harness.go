// Package e2e provides end-to-end testing infrastructure for whale-futures.
// The harness wires the real services against a fake proxy and runs the
// background tasks exactly as the server does.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"whale-futures/config"
	"whale-futures/e2e/mocks"
	"whale-futures/internal/api"
	"whale-futures/internal/app"
	"whale-futures/observability"
	"whale-futures/repository"
)

// TestHarness provides the infrastructure for running E2E tests.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	app        *app.App
	router     http.Handler
	config     *config.Config
	done       chan error
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	return &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup starts the fake proxy and builds the application against it.
func (h *TestHarness) Setup() error {
	observability.InitLogger(false)

	h.mockServer = mocks.NewMockServer()
	h.config = h.createTestConfig()

	deps, err := app.BuildDependencies(h.ctx, h.config)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	h.app = app.New(h.config, deps)
	h.router = api.NewRouter(api.NewHandler(h.app, h.config), h.config)
	return nil
}

// Start runs discovery, polling, price refresh and the stream hub in the
// background until Teardown.
func (h *TestHarness) Start() {
	h.done = make(chan error, 1)
	go func() {
		h.done <- h.app.Run(h.ctx, nil)
	}()
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.cancel != nil {
		h.cancel()
	}

	if h.done != nil {
		select {
		case err := <-h.done:
			if err != nil && !errors.Is(err, context.Canceled) {
				h.t.Logf("app stopped with error: %v", err)
			}
		case <-time.After(10 * time.Second):
			h.t.Log("app did not stop within 10s")
		}
	}

	if h.app != nil {
		h.cleanupTestData()
		h.app.Shutdown(context.Background())
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the fake proxy for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// DoHTMXRequest performs an HTMX request and returns the response.
func (h *TestHarness) DoHTMXRequest(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("HX-Request", "true")

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// WaitFor polls cond until it holds or timeout passes.
func (h *TestHarness) WaitFor(timeout time.Duration, cond func() bool) bool {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func (h *TestHarness) createTestConfig() *config.Config {
	base := h.mockServer.URL()

	cfg := config.NewTestConfig()
	cfg.Upstream.ProxyBase = base
	cfg.Upstream.OrdersAPI = base + "/api/orders"
	cfg.Upstream.PricesAPI = base + "/api/prices"
	cfg.Upstream.AIAPI = base + "/api/AI/recommend"
	cfg.Upstream.OrdersAIAPI = base + "/api/AI/recommend-orders"
	cfg.Traders.OrderBys = []string{"ROI", "PNL"}
	cfg.Polling.PollIntervalMs = 1000
	cfg.Polling.PerRequestDelayMs = 10
	cfg.Polling.EmptyListDelayMs = 20
	cfg.Settings.Dir = h.t.TempDir()
	cfg.Settings.Passphrase = "e2e-test-passphrase"
	cfg.Database.URL = os.Getenv("E2E_DATABASE_URL")
	return cfg
}

// cleanupTestData removes summaries written during the test when a test
// database is configured.
func (h *TestHarness) cleanupTestData() {
	if h.config == nil || h.config.Database.URL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := repository.NewRepository(ctx, h.config.Database.URL)
	if err != nil {
		h.t.Logf("cleanup skipped: %v", err)
		return
	}
	defer repo.Close()

	if _, err := repo.DeleteSummariesBefore(ctx, time.Now().Add(24*time.Hour)); err != nil {
		h.t.Logf("cleanup failed: %v", err)
	}
}

// SkipIfNoDatabase skips the test if the E2E database is not available.
func SkipIfNoDatabase(t *testing.T) {
	t.Helper()

	dbURL := os.Getenv("E2E_DATABASE_URL")
	if dbURL == "" {
		t.Skip("E2E_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := repository.NewRepository(ctx, dbURL)
	if err != nil {
		t.Skipf("E2E database not available: %v", err)
	}
	repo.Close()
}
