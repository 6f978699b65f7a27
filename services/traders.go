package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"whale-futures/models"
)

// TradersConfig holds the leaderboard query parameters
type TradersConfig struct {
	ProxyBase string // the leaderboard is reached through {ProxyBase}/api/call
	BaseURL   string // third-party leaderboard URL
	Interval  string
	Limit     int
	Page      int
	Timeout   time.Duration
}

// TradersService reads copy-trading leaderboards through the proxy's
// pass-through endpoint
type TradersService struct {
	client *proxyClient
	cfg    TradersConfig
}

// NewTradersService creates a new TradersService instance
func NewTradersService(cfg TradersConfig, keys KeyProvider) *TradersService {
	return &TradersService{
		client: newProxyClient(cfg.Timeout, keys),
		cfg:    cfg,
	}
}

// LeaderboardURL builds the third-party leaderboard URL for one ranking
func (s *TradersService) LeaderboardURL(orderBy string) string {
	params := url.Values{}
	params.Set("intervalType", s.cfg.Interval)
	params.Set("limit", strconv.Itoa(s.cfg.Limit))
	params.Set("orderBy", orderBy)
	params.Set("page", strconv.Itoa(s.cfg.Page))
	return s.cfg.BaseURL + "?" + params.Encode()
}

// FetchTraderUIDs returns the trader UIDs of one leaderboard ranking, in
// leaderboard order. A failed call is not retried; the caller decides
// whether to run discovery again.
func (s *TradersService) FetchTraderUIDs(ctx context.Context, orderBy string) ([]string, error) {
	endpoint := strings.TrimRight(s.cfg.ProxyBase, "/") + "/api/call"
	params := url.Values{}
	params.Set("callUrl", s.LeaderboardURL(orderBy))

	return callExternal(ctx, BreakerTraders, "fetch_traders", func() ([]string, error) {
		var page models.TraderPage
		if err := s.client.getJSON(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}
		return page.UIDs(), nil
	})
}
