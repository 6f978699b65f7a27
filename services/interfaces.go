package services

import (
	"context"

	"whale-futures/models"
)

// OrdersFetcher returns the current positions of a batch of traders
type OrdersFetcher interface {
	FetchOrders(ctx context.Context, uids []string) ([]models.Position, error)
}

// PriceSource returns live prices for symbols
type PriceSource interface {
	FetchPrices(ctx context.Context, symbols []string) (models.PriceMap, error)
}

// PriceCache stores last-known prices
type PriceCache interface {
	SetPrices(ctx context.Context, prices models.PriceMap) error
	GetPrices(ctx context.Context, symbols []string) (models.PriceMap, error)
}

// TraderLister returns the trader UIDs of one leaderboard ranking
type TraderLister interface {
	FetchTraderUIDs(ctx context.Context, orderBy string) ([]string, error)
}

// CSVSummarizer turns a CSV snapshot of the table into Markdown commentary
type CSVSummarizer interface {
	Name() string
	SummarizeCSV(ctx context.Context, csv string, topN int) (string, error)
}

// OrdersSummarizer asks the upstream to summarize orders it fetches itself
type OrdersSummarizer interface {
	SummarizeOrders(ctx context.Context, topN int, lang string) (string, error)
}

// Compile-time interface verification
var _ OrdersFetcher = (*OrdersService)(nil)
var _ PriceSource = (*PricesService)(nil)
var _ PriceSource = (*AlpacaService)(nil)
var _ PriceSource = (*FallbackPriceSource)(nil)
var _ TraderLister = (*TradersService)(nil)
var _ CSVSummarizer = (*SummaryService)(nil)
var _ CSVSummarizer = (*BedrockService)(nil)
var _ CSVSummarizer = (*OpenAIService)(nil)
var _ OrdersSummarizer = (*SummaryService)(nil)
