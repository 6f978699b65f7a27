package services

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"whale-futures/models"
	"whale-futures/observability"
)

// OrdersService fetches the positions of a batch of traders from the proxy
type OrdersService struct {
	client   *proxyClient
	endpoint string
}

// NewOrdersService creates a new OrdersService instance
func NewOrdersService(endpoint string, timeout time.Duration, keys KeyProvider) *OrdersService {
	return &OrdersService{
		client:   newProxyClient(timeout, keys),
		endpoint: endpoint,
	}
}

type ordersResponse struct {
	envelope
	Data json.RawMessage `json:"data"`
}

// FetchOrders returns the current positions of the given traders. Elements
// of the data array that do not decode as objects are skipped; a data field
// that is not an array counts as no positions.
func (s *OrdersService) FetchOrders(ctx context.Context, uids []string) ([]models.Position, error) {
	return callExternal(ctx, BreakerOrders, "fetch_orders", func() ([]models.Position, error) {
		params := url.Values{}
		params.Set("uids", strings.Join(uids, ","))

		var resp ordersResponse
		if err := s.client.getJSON(ctx, s.endpoint, params, &resp); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, upstreamError(resp.Error, "orders request failed")
		}

		return decodePositions(resp.Data), nil
	})
}

func decodePositions(data json.RawMessage) []models.Position {
	var items []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &items) != nil {
		return []models.Position{}
	}

	positions := make([]models.Position, 0, len(items))
	for i, item := range items {
		var p models.Position
		if err := json.Unmarshal(item, &p); err != nil {
			observability.Debug("skipping undecodable position", "index", i, "error", err)
			continue
		}
		positions = append(positions, p)
	}
	return positions
}
