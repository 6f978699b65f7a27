// Package cache keeps last-known prices in Redis so the dashboard can still
// value open positions while the live price sources are unavailable.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"whale-futures/models"
	"whale-futures/observability"
)

// DefaultKey is the Redis hash holding one field per symbol
const DefaultKey = "whale-futures:prices"

// ClientConfig holds connection parameters for the Redis client
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and pings it
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// PriceCache stores prices as decimal strings in a single Redis hash. The
// hash expires ttl after the last write, so stale prices do not outlive a
// long outage.
type PriceCache struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

// NewPriceCache creates a PriceCache on rdb. A zero ttl keeps prices forever.
func NewPriceCache(rdb redis.Cmdable, key string, ttl time.Duration) *PriceCache {
	if key == "" {
		key = DefaultKey
	}
	return &PriceCache{rdb: rdb, key: key, ttl: ttl}
}

// SetPrices writes prices and refreshes the hash expiry
func (c *PriceCache) SetPrices(ctx context.Context, prices models.PriceMap) error {
	if len(prices) == 0 {
		return nil
	}

	fields := make(map[string]any, len(prices))
	for symbol, price := range prices {
		fields[symbol] = price.String()
	}

	timer := observability.GetMetrics().NewTimer()
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key, fields)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	timer.ObserveDB("hset", "redis_prices")
	if err != nil {
		observability.GetMetrics().RecordDBError("hset", "redis_prices")
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrices returns the cached prices of symbols; unknown symbols are omitted
func (c *PriceCache) GetPrices(ctx context.Context, symbols []string) (models.PriceMap, error) {
	if len(symbols) == 0 {
		return models.PriceMap{}, nil
	}

	timer := observability.GetMetrics().NewTimer()
	vals, err := c.rdb.HMGet(ctx, c.key, symbols...).Result()
	timer.ObserveDB("hmget", "redis_prices")
	if err != nil {
		observability.GetMetrics().RecordDBError("hmget", "redis_prices")
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	return decodePrices(symbols, vals), nil
}

// decodePrices pairs HMGET results with their symbols, skipping missing
// and unparseable values
func decodePrices(symbols []string, vals []any) models.PriceMap {
	out := make(models.PriceMap, len(symbols))
	for i, v := range vals {
		if i >= len(symbols) {
			break
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		price := models.ParseDecimal(s)
		if !price.Valid || !price.Decimal.IsPositive() {
			continue
		}
		out[symbols[i]] = price.Decimal
	}
	return out
}
