package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestSummaryService(url, key string) *SummaryService {
	return NewSummaryService(SummaryConfig{
		CSVEndpoint:    url + "/api/ai",
		OrdersEndpoint: url + "/api/orders-ai",
		Timeout:        time.Second,
	}, KeyFunc(func() string { return key }))
}

func TestSummaryService_SummarizeCSV(t *testing.T) {
	resetBreakers(t)

	var body csvSummaryRequest
	var path, topN string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		topN = r.URL.Query().Get("topN")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Write([]byte(`{"success": true, "resultMarkdown": "# Top picks"}`))
	}))
	defer server.Close()

	service := newTestSummaryService(server.URL, "")
	got, err := service.SummarizeCSV(context.Background(), "Symbol\nBTC_USDT", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "# Top picks" {
		t.Errorf("got %q", got)
	}
	if path != "/api/ai" || topN != "10" || body.CSV != "Symbol\nBTC_USDT" {
		t.Errorf("path = %q, topN = %q, csv = %q", path, topN, body.CSV)
	}
	if service.Name() != "remote" {
		t.Errorf("Name() = %q", service.Name())
	}
}

func TestSummaryService_SummarizeCSV_Responses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr string
	}{
		{"empty markdown", `{"success": true}`, defaultSummaryText, ""},
		{"failure with message", `{"success": false, "error": "model overloaded"}`, "", "model overloaded"},
		{"failure without message", `{"success": false}`, "", "AI error"},
		{"missing success", `{"resultMarkdown": "x"}`, "", "AI error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetBreakers(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := newTestSummaryService(server.URL, "").SummarizeCSV(context.Background(), "csv", 5)
			if tt.wantErr != "" {
				if !errors.Is(err, ErrUpstream) || err.Error() != tt.wantErr {
					t.Errorf("expected upstream error %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestSummaryService_SummarizeOrders(t *testing.T) {
	resetBreakers(t)

	var key, topN, lang, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-api-key")
		path = r.URL.Path
		topN = r.URL.Query().Get("topN")
		lang = r.URL.Query().Get("lang")
		w.Write([]byte(`{"resultMarkdown": "orders summary"}`))
	}))
	defer server.Close()

	got, err := newTestSummaryService(server.URL, "k-123").SummarizeOrders(context.Background(), 7, "vi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "orders summary" {
		t.Errorf("got %q", got)
	}
	if key != "k-123" || path != "/api/orders-ai" || topN != "7" || lang != "vi" {
		t.Errorf("key = %q, path = %q, topN = %q, lang = %q", key, path, topN, lang)
	}
}

func TestSummaryService_SummarizeOrders_RequiresKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestSummaryService(server.URL, "").SummarizeOrders(context.Background(), 5, "en")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if called {
		t.Error("no request expected without a key")
	}
}

func TestSummaryService_SummarizeOrders_ExplicitFailure(t *testing.T) {
	resetBreakers(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "no orders"}`))
	}))
	defer server.Close()

	_, err := newTestSummaryService(server.URL, "k").SummarizeOrders(context.Background(), 5, "")
	if !errors.Is(err, ErrUpstream) || err.Error() != "no orders" {
		t.Errorf("expected upstream error, got %v", err)
	}
}
