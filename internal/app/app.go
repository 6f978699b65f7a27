// Package app owns the row store and the background tasks and exposes the
// dashboard's use-cases to the HTTP handlers and the desktop shell.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"whale-futures/config"
	"whale-futures/export"
	"whale-futures/internal/blob"
	"whale-futures/internal/settings"
	"whale-futures/internal/stream"
	"whale-futures/models"
	"whale-futures/observability"
	"whale-futures/services"
	"whale-futures/tracker"
)

var (
	ErrArchiveNotConfigured = errors.New("snapshot archive not configured")
	ErrHistoryNotConfigured = errors.New("summary history not configured")
	ErrNoSummarizer         = errors.New("no summarizer configured")
	ErrKeyStoreUnavailable  = errors.New("credential store unavailable")
)

// SummaryRepository is the part of the repository the app needs
type SummaryRepository interface {
	Close()
	Health(ctx context.Context) error
	CreateSummary(ctx context.Context, s *models.Summary) error
	ListSummaries(ctx context.Context, kind models.SummaryKind, limit int) ([]models.Summary, error)
}

// Archiver stores CSV snapshots
type Archiver interface {
	UploadCSV(ctx context.Context, body io.Reader) (*blob.Object, error)
}

// KeyStore holds the internal API key
type KeyStore interface {
	APIKey() string
	SetAPIKey(key string) error
	ClearAPIKey() error
	Status() settings.KeyStatus
}

// HealthCheck probes one optional dependency
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators of App. Only Orders, Prices and
// Traders are required.
type Dependencies struct {
	Orders           services.OrdersFetcher
	Prices           services.PriceSource
	Traders          services.TraderLister
	Summarizer       services.CSVSummarizer
	OrdersSummarizer services.OrdersSummarizer
	Repo             SummaryRepository
	Archive          Archiver
	Keys             KeyStore
	Checks           map[string]HealthCheck
	Closers          []func()
}

// App struct holds the dashboard state and its tasks
type App struct {
	cfg  *config.Config
	deps Dependencies

	store      *tracker.Store
	uids       *tracker.UIDList
	status     *tracker.Status
	poller     *tracker.OrderPoller
	prices     *tracker.PriceRefresher
	discoverer *tracker.Discoverer
	hub        *stream.Hub
	health     *HealthCache

	vip export.VIPSet
	loc *time.Location
	now func() time.Time
}

// New creates a new App. The tasks do not start until Run.
func New(cfg *config.Config, deps Dependencies) *App {
	store := tracker.NewStore()
	uids := tracker.NewUIDList(cfg.Traders.SeedUIDs)
	status := tracker.NewStatus()

	a := &App{
		cfg:    cfg,
		deps:   deps,
		store:  store,
		uids:   uids,
		status: status,
		poller: tracker.NewOrderPoller(deps.Orders, store, uids, status, tracker.PollerConfig{
			BatchSize:       cfg.Polling.BatchSize,
			PerRequestDelay: cfg.PerRequestDelay(),
			EmptyListDelay:  cfg.EmptyListDelay(),
		}),
		prices:     tracker.NewPriceRefresher(deps.Prices, store, status, cfg.PollInterval()),
		discoverer: tracker.NewDiscoverer(deps.Traders, uids, status, cfg.Traders.OrderBys, cfg.DiscoveryDelay()),
		vip:        export.NewVIPSet(cfg.Traders.VIPUIDs),
		loc:        cfg.Location(),
		now:        time.Now,
		health:     NewHealthCache(DefaultHealthCacheTTL),
	}
	a.hub = stream.NewHub(a.sortedRows, splitOrigins(cfg.HTTP.CORSAllowedOrigins))
	store.OnChange(a.hub.Publish)
	return a
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Run starts the hub, the price refresher and the order poller, plus srv
// when it is not nil, and blocks until ctx is cancelled or one of them
// fails. When the UID list starts empty, one discovery runs before polling.
func (a *App) Run(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.hub.Run(gctx) })
	g.Go(func() error { return a.prices.Run(gctx) })
	g.Go(func() error {
		a.discoverIfEmpty(gctx)
		return a.poller.Run(gctx)
	})

	if srv != nil {
		g.Go(func() error {
			observability.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (a *App) discoverIfEmpty(ctx context.Context) {
	if a.uids.Len() > 0 {
		return
	}
	uids, err := a.discoverer.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			observability.WithError(err).Warn("initial trader discovery failed")
		}
		return
	}
	observability.Info("initial trader discovery finished", "uids", len(uids))
}

// Shutdown releases the optional backends
func (a *App) Shutdown(ctx context.Context) {
	if a.deps.Repo != nil {
		a.deps.Repo.Close()
	}
	for _, closeFn := range a.deps.Closers {
		closeFn()
	}
}

// Store returns the row store
func (a *App) Store() *tracker.Store { return a.store }

// Hub returns the WebSocket hub
func (a *App) Hub() *stream.Hub { return a.hub }

// Location returns the display time zone
func (a *App) Location() *time.Location { return a.loc }

// VIP returns the highlighted trader UIDs
func (a *App) VIP() export.VIPSet { return a.vip }

// Now returns the current time
func (a *App) Now() time.Time { return a.now() }

func (a *App) sortedRows() []models.Position {
	return tracker.SortByOpenAtDesc(a.store.Rows())
}

// Rows returns the enriched rows newest first, optionally without the
// negative-PNL ones
func (a *App) Rows(hideNegative bool) []models.Position {
	rows := a.sortedRows()
	if hideNegative {
		rows = tracker.FilterNonNegativePNL(rows)
	}
	return rows
}

// Status returns what the background tasks last did
func (a *App) Status() tracker.StatusSnapshot {
	return a.status.Snapshot()
}

// UIDs returns the traders being polled
func (a *App) UIDs() []string {
	return a.uids.Snapshot()
}

// RefreshUIDs rediscovers the traders to poll
func (a *App) RefreshUIDs(ctx context.Context) ([]string, error) {
	return a.discoverer.Refresh(ctx)
}

// RefreshPrices runs one price tick now
func (a *App) RefreshPrices(ctx context.Context) error {
	return a.prices.Tick(ctx)
}

// CSV renders the visible rows as CSV
func (a *App) CSV(hideNegative bool) (string, error) {
	return export.CSV(a.Rows(hideNegative), a.loc)
}

// ArchiveCSV uploads the visible rows as a CSV snapshot
func (a *App) ArchiveCSV(ctx context.Context, hideNegative bool) (*blob.Object, error) {
	if a.deps.Archive == nil {
		return nil, ErrArchiveNotConfigured
	}
	csv, err := a.CSV(hideNegative)
	if err != nil {
		return nil, fmt.Errorf("failed to build csv: %w", err)
	}
	return a.deps.Archive.UploadCSV(ctx, strings.NewReader(csv))
}

// Recommend sends the visible rows to the configured summarizer
func (a *App) Recommend(ctx context.Context, hideNegative bool) (*models.Summary, error) {
	summarizer := a.deps.Summarizer
	if summarizer == nil {
		return nil, ErrNoSummarizer
	}

	rows := a.Rows(hideNegative)
	csv, err := export.CSV(rows, a.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to build csv: %w", err)
	}

	start := time.Now()
	markdown, err := summarizer.SummarizeCSV(ctx, csv, a.cfg.Summary.TopN)
	observability.GetMetrics().RecordSummary(summarizer.Name(), string(models.SummaryKindCSV), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	s := models.NewSummary(models.SummaryKindCSV, summarizer.Name(), markdown, len(rows))
	a.saveSummary(ctx, s)
	return s, nil
}

// RecommendOrders asks the upstream for its own orders summary
func (a *App) RecommendOrders(ctx context.Context) (*models.Summary, error) {
	if a.deps.OrdersSummarizer == nil {
		return nil, ErrNoSummarizer
	}

	start := time.Now()
	markdown, err := a.deps.OrdersSummarizer.SummarizeOrders(ctx, a.cfg.Summary.OrdersTopN, a.cfg.Summary.Lang)
	observability.GetMetrics().RecordSummary("remote", string(models.SummaryKindOrders), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	s := models.NewSummary(models.SummaryKindOrders, "remote", markdown, 0)
	a.saveSummary(ctx, s)
	return s, nil
}

// saveSummary keeps a summary in the history when a database is configured.
// A failed write does not fail the request.
func (a *App) saveSummary(ctx context.Context, s *models.Summary) {
	if a.deps.Repo == nil {
		return
	}
	if err := a.deps.Repo.CreateSummary(ctx, s); err != nil {
		observability.WithError(err).Warn("failed to store summary", "id", s.ID)
	}
}

// SummaryHistory returns stored summaries, newest first
func (a *App) SummaryHistory(ctx context.Context, kind models.SummaryKind, limit int) ([]models.Summary, error) {
	if a.deps.Repo == nil {
		return nil, ErrHistoryNotConfigured
	}
	return a.deps.Repo.ListSummaries(ctx, kind, limit)
}

// KeyStatus describes the stored internal API key
func (a *App) KeyStatus() settings.KeyStatus {
	if a.deps.Keys == nil {
		return settings.KeyStatus{Source: settings.SourceNone}
	}
	return a.deps.Keys.Status()
}

// SetAPIKey stores the internal API key; an empty key clears it
func (a *App) SetAPIKey(key string) error {
	if a.deps.Keys == nil {
		return ErrKeyStoreUnavailable
	}
	return a.deps.Keys.SetAPIKey(key)
}

// ClearAPIKey removes the stored key
func (a *App) ClearAPIKey() error {
	if a.deps.Keys == nil {
		return ErrKeyStoreUnavailable
	}
	return a.deps.Keys.ClearAPIKey()
}

// Dependency states reported by Health
const (
	HealthConnected     = "connected"
	HealthDisconnected  = "disconnected"
	HealthNotConfigured = "not_configured"
)

// Health probes the optional backends. Results are reused for
// DefaultHealthCacheTTL.
func (a *App) Health(ctx context.Context) map[string]string {
	if cached, ok := a.health.Get(); ok {
		return cached
	}

	out := map[string]string{"database": HealthNotConfigured}
	if a.deps.Repo != nil {
		out["database"] = probe(ctx, a.deps.Repo.Health)
	}
	for name, check := range a.deps.Checks {
		out[name] = probe(ctx, check)
	}
	a.health.Set(out)
	return out
}

func probe(ctx context.Context, check HealthCheck) string {
	if err := check(ctx); err != nil {
		return HealthDisconnected
	}
	return HealthConnected
}
