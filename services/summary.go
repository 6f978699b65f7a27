package services

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// defaultSummaryText is returned when a summary call succeeds with no content
const defaultSummaryText = "No content was returned by the summary service."

// csvSystemPrompt instructs local models summarizing the positions table
const csvSystemPrompt = `You are an analyst reviewing copy-trading leader futures positions.
You receive a CSV snapshot of the currently open and recently closed positions with columns
Symbol, Mode, Margin, PNL, Lev, At VNT, Trader, Flrs, ROI %, M/Mode, Notional, Open Price,
Market Price, Δ % vs Open, Amount, Margin %, UID.
Pick the most interesting positions to follow, explain the reasoning for each in one or two
sentences, and flag crowded symbols or heavy leverage. Answer in concise Markdown.`

// SummaryConfig holds the remote AI endpoints
type SummaryConfig struct {
	CSVEndpoint    string
	OrdersEndpoint string
	Timeout        time.Duration
}

// SummaryService calls the proxy's AI summary endpoints
type SummaryService struct {
	client *proxyClient
	keys   KeyProvider
	cfg    SummaryConfig
}

// NewSummaryService creates a new SummaryService instance
func NewSummaryService(cfg SummaryConfig, keys KeyProvider) *SummaryService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	client := newProxyClient(cfg.Timeout, keys)
	return &SummaryService{
		client: client,
		keys:   client.keys,
		cfg:    cfg,
	}
}

// SummaryResponse is the reply of the AI endpoints
type SummaryResponse struct {
	Success        bool   `json:"success"`
	ResultMarkdown string `json:"resultMarkdown,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ordersSummaryResponse only fails on an explicit success=false
type ordersSummaryResponse struct {
	Success        *bool  `json:"success"`
	ResultMarkdown string `json:"resultMarkdown,omitempty"`
	Error          string `json:"error,omitempty"`
}

type csvSummaryRequest struct {
	CSV string `json:"csv"`
}

// Name implements CSVSummarizer
func (s *SummaryService) Name() string { return "remote" }

// SummarizeCSV implements CSVSummarizer with POST {AI_API}?topN=n
func (s *SummaryService) SummarizeCSV(ctx context.Context, csv string, topN int) (string, error) {
	params := url.Values{}
	params.Set("topN", strconv.Itoa(topN))

	return callExternal(ctx, BreakerSummary, "recommend", func() (string, error) {
		var resp SummaryResponse
		if err := s.client.postJSON(ctx, s.cfg.CSVEndpoint, params, csvSummaryRequest{CSV: csv}, &resp); err != nil {
			return "", err
		}
		if !resp.Success {
			return "", upstreamError(resp.Error, "AI error")
		}
		if resp.ResultMarkdown == "" {
			return defaultSummaryText, nil
		}
		return resp.ResultMarkdown, nil
	})
}

// SummarizeOrders asks the proxy to fetch orders itself and summarize them,
// with POST {ORDERS_AI_API}?topN=n&lang=l. It requires the internal API key.
func (s *SummaryService) SummarizeOrders(ctx context.Context, topN int, lang string) (string, error) {
	if s.keys.APIKey() == "" {
		return "", ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("topN", strconv.Itoa(topN))
	if lang != "" {
		params.Set("lang", lang)
	}

	return callExternal(ctx, BreakerSummary, "recommend_orders", func() (string, error) {
		var resp ordersSummaryResponse
		if err := s.client.postJSON(ctx, s.cfg.OrdersEndpoint, params, struct{}{}, &resp); err != nil {
			return "", err
		}
		if resp.Success != nil && !*resp.Success {
			return "", upstreamError(resp.Error, "orders summary failed")
		}
		if resp.ResultMarkdown == "" {
			return defaultSummaryText, nil
		}
		return resp.ResultMarkdown, nil
	})
}

// csvUserPrompt frames a CSV snapshot for a local model
func csvUserPrompt(csv string, topN int) string {
	return "Highlight the top " + strconv.Itoa(topN) + " positions.\n\n```csv\n" + csv + "\n```"
}
