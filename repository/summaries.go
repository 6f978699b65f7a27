package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"whale-futures/models"
	"whale-futures/observability"
)

const defaultSummaryLimit = 20

// CreateSummary stores a summary, filling in ID and CreatedAt when unset
func (r *Repository) CreateSummary(ctx context.Context, s *models.Summary) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "ai_summaries")

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO ai_summaries (id, kind, provider, markdown, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, string(s.Kind), s.Provider, s.Markdown, s.RowCount, s.CreatedAt)
	if err != nil {
		metrics.RecordDBError("insert", "ai_summaries")
		return fmt.Errorf("failed to create summary: %w", err)
	}
	return nil
}

// GetSummary returns one summary by ID
func (r *Repository) GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "ai_summaries")

	row := r.db.QueryRow(ctx, `
		SELECT id, kind, provider, markdown, row_count, created_at
		FROM ai_summaries WHERE id = $1
	`, id)

	s, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordDBError("select", "ai_summaries")
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return s, nil
}

// ListSummaries returns the newest summaries first. An empty kind matches
// every kind.
func (r *Repository) ListSummaries(ctx context.Context, kind models.SummaryKind, limit int) ([]models.Summary, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "ai_summaries")

	if limit <= 0 {
		limit = defaultSummaryLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, kind, provider, markdown, row_count, created_at
		FROM ai_summaries
		WHERE $1::text = '' OR kind = $1::text
		ORDER BY created_at DESC
		LIMIT $2
	`, string(kind), limit)
	if err != nil {
		metrics.RecordDBError("select", "ai_summaries")
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []models.Summary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			metrics.RecordDBError("select", "ai_summaries")
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordDBError("select", "ai_summaries")
		return nil, fmt.Errorf("failed to read summaries: %w", err)
	}
	return summaries, nil
}

// DeleteSummariesBefore removes summaries older than cutoff
func (r *Repository) DeleteSummariesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := r.checkDB(); err != nil {
		return 0, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("delete", "ai_summaries")

	tag, err := r.db.Exec(ctx, `DELETE FROM ai_summaries WHERE created_at < $1`, cutoff)
	if err != nil {
		metrics.RecordDBError("delete", "ai_summaries")
		return 0, fmt.Errorf("failed to delete summaries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSummary(row pgx.Row) (*models.Summary, error) {
	var s models.Summary
	var kind string
	if err := row.Scan(&s.ID, &kind, &s.Provider, &s.Markdown, &s.RowCount, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Kind = models.SummaryKind(kind)
	return &s, nil
}
