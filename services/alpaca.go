package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"whale-futures/models"
)

// cryptoTradeClient is the part of the Alpaca market data client we use
type cryptoTradeClient interface {
	GetLatestCryptoTrades(symbols []string, req marketdata.GetLatestCryptoDataRequest) (map[string]marketdata.CryptoTrade, error)
}

// AlpacaService reads latest crypto trades from Alpaca as a fallback price
// source for futures symbols the proxy could not price
type AlpacaService struct {
	dataClient cryptoTradeClient
}

// NewAlpacaService creates a new AlpacaService instance
func NewAlpacaService(apiKey, apiSecret string) *AlpacaService {
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &AlpacaService{dataClient: dataClient}
}

// CryptoPair maps a futures symbol such as BTC_USDT to the Alpaca pair
// BTC/USD. Only dollar-quoted symbols map.
func CryptoPair(symbol string) (string, bool) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "_")
	if !ok || base == "" {
		return "", false
	}
	switch quote {
	case "USDT", "USDC", "USD":
		return base + "/USD", true
	default:
		return "", false
	}
}

// FetchPrices implements PriceSource. Symbols without an Alpaca pair are
// ignored.
func (s *AlpacaService) FetchPrices(ctx context.Context, symbols []string) (models.PriceMap, error) {
	pairToSymbols := make(map[string][]string)
	pairs := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		pair, ok := CryptoPair(symbol)
		if !ok {
			continue
		}
		if _, seen := pairToSymbols[pair]; !seen {
			pairs = append(pairs, pair)
		}
		pairToSymbols[pair] = append(pairToSymbols[pair], symbol)
	}
	if len(pairs) == 0 {
		return models.PriceMap{}, nil
	}

	return callExternal(ctx, BreakerAlpaca, "latest_crypto_trades", func() (models.PriceMap, error) {
		trades, err := s.dataClient.GetLatestCryptoTrades(pairs, marketdata.GetLatestCryptoDataRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to get crypto trades: %w", err)
		}

		prices := make(models.PriceMap, len(symbols))
		for pair, trade := range trades {
			if trade.Price <= 0 {
				continue
			}
			price := decimal.NewFromFloat(trade.Price)
			for _, symbol := range pairToSymbols[pair] {
				prices[symbol] = price
			}
		}
		return prices, nil
	})
}
