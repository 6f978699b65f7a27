package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPositionMode_Direction(t *testing.T) {
	tests := []struct {
		mode PositionMode
		want int64
	}{
		{"long", 1},
		{"LONG", 1},
		{" Short ", -1},
		{"short", -1},
		{"", 0},
		{"hedge", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.Direction(); got != tt.want {
				t.Errorf("Direction() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPosition_UnmarshalJSON(t *testing.T) {
	data := `{
		"id": "a",
		"uid": 123,
		"symbol": "BTC_USDT",
		"mode": "LONG",
		"openPrice": "100.5",
		"amount": 2,
		"margin": null,
		"lev": 20,
		"openAt": "2024-01-02T03:04:05Z",
		"custom": "x",
		"pnl": 999
	}`

	var p Position
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if p.ID != "a" {
		t.Errorf("expected ID 'a', got %q", p.ID)
	}
	if p.TraderUID != "123" {
		t.Errorf("expected TraderUID from uid fallback, got %q", p.TraderUID)
	}
	if p.Mode.Direction() != 1 {
		t.Errorf("expected long direction, got mode %q", p.Mode)
	}
	if !p.OpenPrice.Valid || !p.OpenPrice.Decimal.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("expected OpenPrice 100.5, got %v", p.OpenPrice)
	}
	if p.Margin.Valid {
		t.Error("expected null margin to be invalid")
	}
	if !p.Leverage.Valid || p.Leverage.Decimal.IntPart() != 20 {
		t.Errorf("expected leverage 20, got %v", p.Leverage)
	}
	wantOpenAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	if p.OpenAt != wantOpenAt {
		t.Errorf("expected OpenAt %d, got %d", wantOpenAt, p.OpenAt)
	}
	if _, ok := p.Extra["custom"]; !ok {
		t.Error("expected unknown key to be preserved")
	}
	if _, ok := p.Extra["pnl"]; ok {
		t.Error("derived keys must not be preserved from input")
	}
	if p.PNL.Valid {
		t.Error("derived PNL must not be decoded")
	}
}

func TestPosition_UnmarshalJSON_TraderUIDPrecedence(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"explicit", `{"id":"a","traderUid":"1","raw":{"traderUid":"2"},"uid":"3"}`, "1"},
		{"raw", `{"id":"a","raw":{"traderUid":2},"uid":"3"}`, "2"},
		{"uid", `{"id":"a","uid":"3"}`, "3"},
		{"none", `{"id":"a"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Position
			if err := json.Unmarshal([]byte(tt.data), &p); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if p.TraderUID != tt.want {
				t.Errorf("TraderUID = %q, want %q", p.TraderUID, tt.want)
			}
		})
	}
}

func TestPosition_UnmarshalJSON_OpenAt(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int64
	}{
		{"millis number", `{"openAt":1700000000000}`, 1700000000000},
		{"millis string", `{"openAt":"1700000000000"}`, 1700000000000},
		{"plain datetime", `{"openAt":"2024-01-02 03:04:05"}`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()},
		{"fallback openAtMs", `{"openAtMs":1700000000001}`, 1700000000001},
		{"garbage", `{"openAt":"soon"}`, 0},
		{"null", `{"openAt":null}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Position
			if err := json.Unmarshal([]byte(tt.data), &p); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if p.OpenAt != tt.want {
				t.Errorf("OpenAt = %d, want %d", p.OpenAt, tt.want)
			}
		})
	}
}

func TestPosition_UnmarshalJSON_Invalid(t *testing.T) {
	for _, data := range []string{`null`, `[]`, `"a"`} {
		var p Position
		if err := json.Unmarshal([]byte(data), &p); err == nil {
			t.Errorf("expected error for %s", data)
		}
	}
}

func TestPosition_Merge(t *testing.T) {
	var existing, incoming Position
	if err := json.Unmarshal([]byte(`{"id":"a","traderUid":"1","symbol":"X","mode":"long","amount":1,"note":"old","keep":"yes"}`), &existing); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id":"a","amount":3,"note":"new"}`), &incoming); err != nil {
		t.Fatal(err)
	}

	merged := existing.Merge(incoming)

	if merged.Symbol != "X" || merged.TraderUID != "1" || merged.Mode != PositionModeLong {
		t.Errorf("expected absent fields to be preserved, got %+v", merged)
	}
	if !merged.Amount.Decimal.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected amount 3, got %v", merged.Amount)
	}
	if string(merged.Extra["note"]) != `"new"` {
		t.Errorf("expected extra note overwritten, got %s", merged.Extra["note"])
	}
	if string(merged.Extra["keep"]) != `"yes"` {
		t.Errorf("expected extra keep preserved, got %s", merged.Extra["keep"])
	}
	if string(existing.Extra["note"]) != `"old"` {
		t.Error("Merge must not mutate the receiver's extras")
	}
}

func TestPosition_Merge_NullOverwrites(t *testing.T) {
	var existing, incoming Position
	if err := json.Unmarshal([]byte(`{"id":"a","margin":5}`), &existing); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id":"a","margin":null}`), &incoming); err != nil {
		t.Fatal(err)
	}

	if merged := existing.Merge(incoming); merged.Margin.Valid {
		t.Error("expected explicit null to overwrite margin")
	}
}

func TestPosition_Merge_CodeBuiltReplacesAll(t *testing.T) {
	existing := Position{ID: "a", Symbol: "X", Trader: "alice"}
	incoming := Position{ID: "a", Symbol: "Y"}

	merged := existing.Merge(incoming)
	if merged.Symbol != "Y" || merged.Trader != "" {
		t.Errorf("expected every field of a code-built record to win, got %+v", merged)
	}
}

func TestPosition_IsClosed(t *testing.T) {
	tests := []struct {
		name  string
		close decimal.NullDecimal
		want  bool
	}{
		{"absent", decimal.NullDecimal{}, false},
		{"zero", decimal.NewNullDecimal(decimal.Zero), false},
		{"set", decimal.NewNullDecimal(decimal.NewFromInt(42)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Position{CloseAvgPrice: tt.close}
			if got := p.IsClosed(); got != tt.want {
				t.Errorf("IsClosed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPosition_MarshalJSON(t *testing.T) {
	var p Position
	if err := json.Unmarshal([]byte(`{"id":"a","traderUid":"1","symbol":"X","mode":"long","openPrice":10,"amount":1,"margin":5,"custom":{"k":1}}`), &p); err != nil {
		t.Fatal(err)
	}
	p = Enrich(p, PriceMap{"X": decimal.NewFromInt(12)})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if out["pnl"] != float64(2) {
		t.Errorf("expected pnl 2, got %v", out["pnl"])
	}
	if out["roi"] != float64(40) {
		t.Errorf("expected roi 40, got %v", out["roi"])
	}
	if out["closeAvgPrice"] != nil {
		t.Errorf("expected null closeAvgPrice, got %v", out["closeAvgPrice"])
	}
	if out["openAt"] != nil {
		t.Errorf("expected null openAt, got %v", out["openAt"])
	}
	custom, ok := out["custom"].(map[string]any)
	if !ok || custom["k"] != float64(1) {
		t.Errorf("expected custom extra to round-trip, got %v", out["custom"])
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"1.5", true},
		{" 2 ", true},
		{"-0.001", true},
		{"", false},
		{"NaN", false},
		{"abc", false},
		{"1e308", true},
		{"1.7e308", true},
		{"-1e-300", true},
		{"1e309", false},
		{"1e50000000", false},
		{"-1e50000000", false},
		{"1e-50000000", false},
	}

	for _, tt := range tests {
		if got := ParseDecimal(tt.in); got.Valid != tt.valid {
			t.Errorf("ParseDecimal(%q).Valid = %v, want %v", tt.in, got.Valid, tt.valid)
		}
	}
}

func TestPosition_UnmarshalJSON_NonFinite(t *testing.T) {
	var p Position
	data := `{"symbol":"X","openPrice":"1e50000000","amount":1e50000000,"margin":"10","mode":"long"}`
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OpenPrice.Valid {
		t.Errorf("expected openPrice undefined, got %s", p.OpenPrice.Decimal)
	}
	if p.Amount.Valid {
		t.Errorf("expected amount undefined, got %s", p.Amount.Decimal)
	}
	if !p.Margin.Valid {
		t.Error("expected margin to stay defined")
	}
}
