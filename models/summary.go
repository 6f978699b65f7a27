package models

import (
	"time"

	"github.com/google/uuid"
)

// SummaryKind identifies what an AI summary was computed from
type SummaryKind string

const (
	SummaryKindCSV    SummaryKind = "csv"
	SummaryKindOrders SummaryKind = "orders"
)

// Summary is one AI-generated commentary on the dashboard
type Summary struct {
	ID        uuid.UUID   `json:"id"`
	Kind      SummaryKind `json:"kind"`
	Provider  string      `json:"provider"`
	Markdown  string      `json:"result_markdown"`
	RowCount  int         `json:"row_count"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewSummary creates a summary record stamped with a fresh ID
func NewSummary(kind SummaryKind, provider, markdown string, rows int) *Summary {
	return &Summary{
		ID:        uuid.New(),
		Kind:      kind,
		Provider:  provider,
		Markdown:  markdown,
		RowCount:  rows,
		CreatedAt: time.Now().UTC(),
	}
}
