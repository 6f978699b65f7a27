package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"whale-futures/models"
)

// SummaryRepository persists AI summaries
type SummaryRepository interface {
	Close()
	Health(ctx context.Context) error

	CreateSummary(ctx context.Context, s *models.Summary) error
	GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error)
	ListSummaries(ctx context.Context, kind models.SummaryKind, limit int) ([]models.Summary, error)
	DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compile-time interface verification
var _ SummaryRepository = (*Repository)(nil)
