package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"whale-futures/models"
	"whale-futures/observability"
)

// PricesService fetches live prices for a set of symbols from the proxy
type PricesService struct {
	client   *proxyClient
	endpoint string
}

// NewPricesService creates a new PricesService instance
func NewPricesService(endpoint string, timeout time.Duration, keys KeyProvider) *PricesService {
	return &PricesService{
		client:   newProxyClient(timeout, keys),
		endpoint: endpoint,
	}
}

type pricesResponse struct {
	envelope
	Prices map[string]json.RawMessage `json:"prices"`
}

// FetchPrices returns the live price of each requested symbol the proxy
// knows. Missing, non-numeric and non-positive prices are dropped.
func (s *PricesService) FetchPrices(ctx context.Context, symbols []string) (models.PriceMap, error) {
	return callExternal(ctx, BreakerPrices, "fetch_prices", func() (models.PriceMap, error) {
		params := url.Values{}
		params.Set("symbols", strings.Join(symbols, ","))

		var resp pricesResponse
		if err := s.client.getJSON(ctx, s.endpoint, params, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, upstreamError(resp.Error, "prices request failed")
		}

		prices := make(models.PriceMap, len(resp.Prices))
		for symbol, raw := range resp.Prices {
			price := models.DecimalFromJSON(raw)
			if !price.Valid || !price.Decimal.IsPositive() {
				continue
			}
			prices[symbol] = price.Decimal
		}
		return prices, nil
	})
}

// FallbackPriceSource asks the primary source first, fills symbols it
// missed from the secondary source, writes every price it obtained to the
// cache and serves last-known cached prices when no live source answers.
// A primary failure is returned alongside any prices served in its place.
// Secondary and cache are optional.
type FallbackPriceSource struct {
	primary   PriceSource
	secondary PriceSource
	cache     PriceCache
}

// NewFallbackPriceSource creates a new FallbackPriceSource
func NewFallbackPriceSource(primary, secondary PriceSource, cache PriceCache) *FallbackPriceSource {
	return &FallbackPriceSource{
		primary:   primary,
		secondary: secondary,
		cache:     cache,
	}
}

// FetchPrices implements PriceSource
func (f *FallbackPriceSource) FetchPrices(ctx context.Context, symbols []string) (models.PriceMap, error) {
	out := make(models.PriceMap, len(symbols))

	prices, primaryErr := f.primary.FetchPrices(ctx, symbols)
	for k, v := range prices {
		out[k] = v
	}

	if f.secondary != nil {
		if missing := missingSymbols(symbols, out); len(missing) > 0 {
			extra, err := f.secondary.FetchPrices(ctx, missing)
			if err != nil {
				observability.Debug("secondary price source failed", "symbols", len(missing), "error", err)
			}
			for k, v := range extra {
				if _, ok := out[k]; !ok {
					out[k] = v
				}
			}
		}
	}

	if len(out) > 0 {
		if f.cache != nil {
			if err := f.cache.SetPrices(ctx, out); err != nil {
				observability.Warn("failed to cache prices", "error", err)
			}
		}
		return out, fallbackError(primaryErr, "secondary")
	}

	if f.cache != nil && ctx.Err() == nil {
		cached, err := f.cache.GetPrices(ctx, symbols)
		if err != nil {
			observability.Warn("failed to read cached prices", "error", err)
		} else if len(cached) > 0 {
			if primaryErr != nil {
				observability.Warn("serving last-known prices", "symbols", len(cached), "error", primaryErr)
			}
			return cached, fallbackError(primaryErr, "cached")
		}
	}

	if primaryErr != nil {
		return nil, primaryErr
	}
	return out, nil
}

// fallbackError keeps a primary failure visible when another source filled
// in for it
func fallbackError(primaryErr error, served string) error {
	if primaryErr == nil {
		return nil
	}
	return fmt.Errorf("primary price source failed, serving %s prices: %w", served, primaryErr)
}

func missingSymbols(symbols []string, have models.PriceMap) []string {
	var missing []string
	for _, s := range symbols {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
