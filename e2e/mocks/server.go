// Package mocks provides a fake backend proxy for end-to-end tests and for
// running the dashboard without the real upstream.
package mocks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

const apiKeyHeader = "x-api-key"

// Endpoint names used for failure injection
const (
	EndpointOrders   = "orders"
	EndpointPrices   = "prices"
	EndpointTraders  = "traders"
	EndpointAI       = "ai"
	EndpointOrdersAI = "orders-ai"
)

// MockServer serves the proxy's orders, prices, pass-through and AI
// endpoints from configurable fixtures.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	orders      map[string][]Order            // key: trader uid
	prices      map[string]float64            // key: symbol
	leaderboard map[string][]LeaderboardEntry // key: orderBy
	aiMarkdown  string
	ordersAI    string
	requiredKey string
	failures    map[string]Failure

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Query  string
	Body   string
	APIKey string
}

// New creates a handler with the default fixtures and no listener.
func New() *MockServer {
	m := &MockServer{
		orders:      make(map[string][]Order),
		prices:      make(map[string]float64),
		leaderboard: make(map[string][]LeaderboardEntry),
		failures:    make(map[string]Failure),
	}
	m.setDefaults()
	return m
}

// NewMockServer creates a mock server with default responses listening on
// a local port.
func NewMockServer() *MockServer {
	m := New()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	if m.server == nil {
		return ""
	}
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.server != nil {
		m.server.Close()
	}
}

// ServeHTTP routes requests to the matching fake endpoint.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
		APIKey: r.Header.Get(apiKeyHeader),
	})
	required := m.requiredKey
	m.mu.Unlock()

	if required != "" && r.Header.Get(apiKeyHeader) != required {
		writeJSON(w, http.StatusUnauthorized, summaryResponse{Error: "invalid api key"})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/orders":
		m.handleOrders(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/prices":
		m.handlePrices(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/call":
		m.handleCall(w, r)
	case r.Method == http.MethodPost && strings.EqualFold(r.URL.Path, "/api/AI/recommend"):
		m.handleSummary(w, EndpointAI)
	case r.Method == http.MethodPost && strings.EqualFold(r.URL.Path, "/api/AI/recommend-orders"):
		m.handleSummary(w, EndpointOrdersAI)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (m *MockServer) handleOrders(w http.ResponseWriter, r *http.Request) {
	if m.fail(w, EndpointOrders) {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data := []Order{}
	for _, uid := range splitList(r.URL.Query().Get("uids")) {
		data = append(data, m.orders[uid]...)
	}
	writeJSON(w, http.StatusOK, ordersResponse{Success: true, Data: data})
}

func (m *MockServer) handlePrices(w http.ResponseWriter, r *http.Request) {
	if m.fail(w, EndpointPrices) {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	prices := make(map[string]float64)
	for _, symbol := range splitList(r.URL.Query().Get("symbols")) {
		if p, ok := m.prices[symbol]; ok {
			prices[symbol] = p
		}
	}
	writeJSON(w, http.StatusOK, pricesResponse{Success: true, Prices: prices})
}

// handleCall answers pass-through requests; only leaderboard URLs are known
func (m *MockServer) handleCall(w http.ResponseWriter, r *http.Request) {
	if m.fail(w, EndpointTraders) {
		return
	}

	target, err := url.Parse(r.URL.Query().Get("callUrl"))
	if err != nil || target.Host == "" {
		writeJSON(w, http.StatusBadRequest, summaryResponse{Error: "invalid callUrl"})
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var page leaderboardPage
	page.Data.Content = append([]LeaderboardEntry{}, m.leaderboard[target.Query().Get("orderBy")]...)
	writeJSON(w, http.StatusOK, page)
}

func (m *MockServer) handleSummary(w http.ResponseWriter, endpoint string) {
	if m.fail(w, endpoint) {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	markdown := m.aiMarkdown
	if endpoint == EndpointOrdersAI {
		markdown = m.ordersAI
	}
	writeJSON(w, http.StatusOK, summaryResponse{Success: true, ResultMarkdown: markdown})
}

// fail writes the injected failure for endpoint, if any
func (m *MockServer) fail(w http.ResponseWriter, endpoint string) bool {
	m.mu.RLock()
	f, ok := m.failures[endpoint]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	status := f.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, summaryResponse{Success: false, Error: f.Message})
	return true
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// RequestsTo returns the logged requests for path.
func (m *MockServer) RequestsTo(path string) []RequestLog {
	var out []RequestLog
	for _, r := range m.GetRequestLog() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = nil
}

// SetOrders replaces the positions returned for a trader.
func (m *MockServer) SetOrders(uid string, orders []Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[uid] = orders
}

// SetPrice sets the live price of a symbol.
func (m *MockServer) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetLeaderboard replaces the traders of one ranking.
func (m *MockServer) SetLeaderboard(orderBy string, uids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]LeaderboardEntry, 0, len(uids))
	for _, uid := range uids {
		entries = append(entries, LeaderboardEntry{UID: uid})
	}
	m.leaderboard[orderBy] = entries
}

// SetSummaries configures the markdown of the two AI endpoints.
func (m *MockServer) SetSummaries(csv, orders string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aiMarkdown = csv
	m.ordersAI = orders
}

// RequireAPIKey rejects requests without this key. Empty disables the check.
func (m *MockServer) RequireAPIKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requiredKey = key
}

// SetFailure makes endpoint fail until ClearFailure is called.
func (m *MockServer) SetFailure(endpoint string, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = f
}

// ClearFailure restores endpoint.
func (m *MockServer) ClearFailure(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, endpoint)
}

func (m *MockServer) setDefaults() {
	m.leaderboard["ROI"] = []LeaderboardEntry{{UID: "1001", Nickname: "WhaleAlpha"}, {UID: "1002", Nickname: "Tide"}}
	m.leaderboard["PNL"] = []LeaderboardEntry{{UID: "1002", Nickname: "Tide"}, {UID: "1003", Nickname: "DeepBlue"}}

	m.orders["1001"] = []Order{{
		ID: "o-1001-btc", TraderUID: "1001", Trader: "WhaleAlpha", Followers: 1200,
		Symbol: "BTC_USDT", Mode: "long", OpenPrice: 60000, Amount: 0.5, Margin: 3000, Leverage: 10,
		MarginMode: "cross", OpenAt: 1700000000000,
	}}
	m.orders["1002"] = []Order{{
		ID: "o-1002-eth", TraderUID: "1002", Trader: "Tide", Followers: 85,
		Symbol: "ETH_USDT", Mode: "short", OpenPrice: 3000, Amount: 4, Margin: 1200, Leverage: 10,
		MarginMode: "isolated", OpenAt: 1700000600000,
	}}
	m.orders["1003"] = []Order{}

	m.prices["BTC_USDT"] = 62000
	m.prices["ETH_USDT"] = 2900

	m.aiMarkdown = "## Picks\n\n1. **BTC_USDT** long by WhaleAlpha"
	m.ordersAI = "## Orders\n\nTwo traders are long BTC."
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
