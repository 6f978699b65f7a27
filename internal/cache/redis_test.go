package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"whale-futures/models"
)

func TestDecodePrices(t *testing.T) {
	symbols := []string{"BTC_USDT", "ETH_USDT", "BAD_USDT", "ZERO_USDT", "NIL_USDT", "HUGE_USDT"}
	vals := []any{"65000.5", "3200", "n/a", "0", nil, "1e50000000"}

	got := decodePrices(symbols, vals)

	if len(got) != 2 {
		t.Fatalf("expected 2 prices, got %v", got)
	}
	if !got["BTC_USDT"].Equal(decimal.RequireFromString("65000.5")) {
		t.Errorf("BTC_USDT = %s", got["BTC_USDT"])
	}
	if !got["ETH_USDT"].Equal(decimal.NewFromInt(3200)) {
		t.Errorf("ETH_USDT = %s", got["ETH_USDT"])
	}
}

func TestNewPriceCache_DefaultKey(t *testing.T) {
	c := NewPriceCache(nil, "", time.Hour)
	if c.key != DefaultKey {
		t.Errorf("key = %q, want %q", c.key, DefaultKey)
	}
}

func TestPriceCache_EmptyInputs(t *testing.T) {
	c := NewPriceCache(nil, "", 0)

	if err := c.SetPrices(context.Background(), nil); err != nil {
		t.Errorf("SetPrices(nil) = %v", err)
	}
	got, err := c.GetPrices(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("GetPrices(nil) = %v, %v", got, err)
	}
}

// TestPriceCache_Redis runs against a real server when REDIS_ADDR is set
func TestPriceCache_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis test")
	}

	ctx := context.Background()
	rdb, err := NewClient(ctx, ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer rdb.Close()

	key := "whale-futures:test:" + time.Now().Format("150405.000000")
	defer rdb.Del(ctx, key)

	c := NewPriceCache(rdb, key, time.Minute)
	if err := c.SetPrices(ctx, models.PriceMap{"BTC_USDT": decimal.RequireFromString("64000.25")}); err != nil {
		t.Fatalf("SetPrices() error = %v", err)
	}

	got, err := c.GetPrices(ctx, []string{"BTC_USDT", "MISSING"})
	if err != nil {
		t.Fatalf("GetPrices() error = %v", err)
	}
	if len(got) != 1 || got["BTC_USDT"].String() != "64000.25" {
		t.Errorf("GetPrices() = %v", got)
	}

	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		t.Errorf("expected an expiry on the hash, got %v, %v", ttl, err)
	}
}
