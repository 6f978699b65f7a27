//go:build e2e
// +build e2e

package scenarios

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"whale-futures/e2e"
	"whale-futures/e2e/mocks"
)

type rowsBody struct {
	Rows []struct {
		ID          string   `json:"id"`
		Symbol      string   `json:"symbol"`
		PNL         *float64 `json:"pnl"`
		MarketPrice *float64 `json:"marketPrice"`
	} `json:"rows"`
	Count    int `json:"count"`
	UIDCount int `json:"uidCount"`
}

func setup(t *testing.T) *e2e.TestHarness {
	t.Helper()
	harness := e2e.NewTestHarness(t)
	if err := harness.Setup(); err != nil {
		t.Fatalf("failed to setup test harness: %v", err)
	}
	t.Cleanup(harness.Teardown)
	return harness
}

func getRows(t *testing.T, harness *e2e.TestHarness, path string) rowsBody {
	t.Helper()
	resp := harness.DoRequest(http.MethodGet, path, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.Code)
	}
	var body rowsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	return body
}

func TestDashboard_DiscoverPollAndPrice(t *testing.T) {
	harness := setup(t)
	harness.Start()

	ok := harness.WaitFor(10*time.Second, func() bool {
		body := getRows(t, harness, "/api/rows")
		return body.Count == 2 && body.Rows[0].MarketPrice != nil && body.Rows[1].MarketPrice != nil
	})
	if !ok {
		t.Fatal("rows were not polled and priced in time")
	}

	body := getRows(t, harness, "/api/rows")
	if body.UIDCount != 3 {
		t.Errorf("expected 3 discovered traders, got %d", body.UIDCount)
	}

	t.Run("rows newest first with derived pnl", func(t *testing.T) {
		if body.Rows[0].ID != "o-1002-eth" || body.Rows[1].ID != "o-1001-btc" {
			t.Fatalf("unexpected order %s, %s", body.Rows[0].ID, body.Rows[1].ID)
		}
		// short 4 ETH from 3000 to 2900
		if body.Rows[0].PNL == nil || *body.Rows[0].PNL != 400 {
			t.Errorf("eth pnl = %v, want 400", body.Rows[0].PNL)
		}
		// long 0.5 BTC from 60000 to 62000
		if body.Rows[1].PNL == nil || *body.Rows[1].PNL != 1000 {
			t.Errorf("btc pnl = %v, want 1000", body.Rows[1].PNL)
		}
	})

	t.Run("api key is forwarded", func(t *testing.T) {
		for _, r := range harness.MockServer().RequestsTo("/api/orders") {
			if r.APIKey != "" {
				t.Fatalf("unexpected api key %q without a stored key", r.APIKey)
			}
		}
	})

	t.Run("closed position leaves on next batch", func(t *testing.T) {
		harness.MockServer().SetOrders("1002", nil)

		ok := harness.WaitFor(10*time.Second, func() bool {
			return getRows(t, harness, "/api/rows").Count == 1
		})
		if !ok {
			t.Fatal("pruned row still present")
		}
	})

	t.Run("csv export", func(t *testing.T) {
		resp := harness.DoRequest(http.MethodGet, "/api/rows.csv", "")
		lines := strings.Split(resp.Body.String(), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[1], "BTC_USDT,long,3000,1000") {
			t.Errorf("unexpected csv %q", resp.Body.String())
		}
	})

	t.Run("dashboard renders", func(t *testing.T) {
		resp := harness.DoHTMXRequest(http.MethodGet, "/api/rows")
		if !strings.Contains(resp.Body.String(), "BTC_USDT") {
			t.Errorf("expected table with BTC_USDT")
		}
	})
}

func TestDashboard_AISummaries(t *testing.T) {
	harness := setup(t)

	t.Run("csv summary", func(t *testing.T) {
		resp := harness.DoRequest(http.MethodPost, "/api/ai/recommend", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		if body["success"] != true || !strings.Contains(body["resultMarkdown"].(string), "BTC_USDT") {
			t.Errorf("unexpected body %v", body)
		}
		if got := harness.MockServer().RequestsTo("/api/AI/recommend"); len(got) != 1 || !strings.Contains(got[0].Query, "topN=8") {
			t.Errorf("unexpected upstream requests %+v", got)
		}
	})

	t.Run("orders summary needs a key", func(t *testing.T) {
		resp := harness.DoRequest(http.MethodPost, "/api/ai/recommend-orders", "")
		if resp.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.Code)
		}
	})

	t.Run("orders summary with stored key", func(t *testing.T) {
		harness.MockServer().RequireAPIKey("e2e-key-123")
		resp := harness.DoRequest(http.MethodPut, "/api/settings/api-key", `{"key":"e2e-key-123"}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("failed to store key: %d", resp.Code)
		}

		resp = harness.DoRequest(http.MethodPost, "/api/ai/recommend-orders", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		got := harness.MockServer().RequestsTo("/api/AI/recommend-orders")
		if len(got) == 0 || !strings.Contains(got[len(got)-1].Query, "lang=vi") {
			t.Errorf("unexpected upstream requests %+v", got)
		}
	})

	t.Run("upstream failure surfaces its message", func(t *testing.T) {
		harness.MockServer().RequireAPIKey("")
		harness.MockServer().SetFailure(mocks.EndpointAI, mocks.Failure{Message: "model overloaded"})
		defer harness.MockServer().ClearFailure(mocks.EndpointAI)

		resp := harness.DoRequest(http.MethodPost, "/api/ai/recommend", "")
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		if body["success"] != false || body["error"] != "model overloaded" {
			t.Errorf("unexpected body %v", body)
		}
	})
}

func TestDashboard_SummaryHistory(t *testing.T) {
	e2e.SkipIfNoDatabase(t)
	harness := setup(t)

	if resp := harness.DoRequest(http.MethodPost, "/api/ai/recommend", ""); resp.Code != http.StatusOK {
		t.Fatalf("recommend failed: %d", resp.Code)
	}

	resp := harness.DoRequest(http.MethodGet, "/api/ai/history?kind=csv", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var summaries []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) == 0 {
		t.Error("expected the summary to be stored")
	}
}
