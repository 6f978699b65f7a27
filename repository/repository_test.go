package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"whale-futures/models"
)

// getTestDB returns a repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	return repo
}

func cleanupSummaries(t *testing.T, repo *Repository) {
	t.Helper()
	repo.pool.Exec(context.Background(), "DELETE FROM ai_summaries WHERE provider = 'test'")
}

func TestRepository_NoDatabase(t *testing.T) {
	var repo Repository
	ctx := context.Background()

	if err := repo.CreateSummary(ctx, &models.Summary{}); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("CreateSummary() error = %v, want ErrNoDatabase", err)
	}
	if _, err := repo.GetSummary(ctx, uuid.New()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("GetSummary() error = %v, want ErrNoDatabase", err)
	}
	if _, err := repo.ListSummaries(ctx, "", 5); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("ListSummaries() error = %v, want ErrNoDatabase", err)
	}
	if _, err := repo.DeleteSummariesBefore(ctx, time.Now()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("DeleteSummariesBefore() error = %v, want ErrNoDatabase", err)
	}
	if err := repo.Health(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Health() error = %v, want ErrNoDatabase", err)
	}
	repo.Close()
}

func TestRepository_Summaries_CRUD(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	defer cleanupSummaries(t, repo)
	ctx := context.Background()

	csv := models.NewSummary(models.SummaryKindCSV, "test", "**BTC** looks crowded", 12)
	csv.CreatedAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	if err := repo.CreateSummary(ctx, csv); err != nil {
		t.Fatalf("CreateSummary() error = %v", err)
	}

	orders := &models.Summary{Kind: models.SummaryKindOrders, Provider: "test", Markdown: "ok"}
	if err := repo.CreateSummary(ctx, orders); err != nil {
		t.Fatalf("CreateSummary() error = %v", err)
	}
	if orders.ID == uuid.Nil || orders.CreatedAt.IsZero() {
		t.Error("CreateSummary() should fill ID and CreatedAt")
	}

	got, err := repo.GetSummary(ctx, csv.ID)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if got.Markdown != csv.Markdown || got.RowCount != 12 || got.Kind != models.SummaryKindCSV {
		t.Errorf("GetSummary() = %+v", got)
	}

	if _, err := repo.GetSummary(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSummary(unknown) error = %v, want ErrNotFound", err)
	}

	onlyCSV, err := repo.ListSummaries(ctx, models.SummaryKindCSV, 50)
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	for _, s := range onlyCSV {
		if s.Kind != models.SummaryKindCSV {
			t.Errorf("ListSummaries(csv) returned kind %q", s.Kind)
		}
	}

	all, err := repo.ListSummaries(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != orders.ID {
		t.Errorf("expected newest summary first, got %+v", all)
	}

	deleted, err := repo.DeleteSummariesBefore(ctx, csv.CreatedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("DeleteSummariesBefore() error = %v", err)
	}
	if deleted < 1 {
		t.Errorf("expected at least one deleted summary, got %d", deleted)
	}
}
