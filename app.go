package main

import (
	"context"
	"errors"
	"time"

	"whale-futures/internal/app"
	"whale-futures/internal/settings"
	"whale-futures/models"
	"whale-futures/observability"
	"whale-futures/tracker"
)

// Desktop binds the dashboard to the Wails window
type Desktop struct {
	ctx    context.Context
	cancel context.CancelFunc
	app    *app.App
	done   chan error
}

// NewDesktop creates a new Desktop application struct
func NewDesktop(application *app.App) *Desktop {
	return &Desktop{app: application}
}

// startup is called when the app starts. The background tasks run until
// shutdown.
func (d *Desktop) startup(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan error, 1)
	go func() {
		d.done <- d.app.Run(d.ctx, nil)
	}()
}

// shutdown is called when the app is closing
func (d *Desktop) shutdown(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
		select {
		case err := <-d.done:
			if err != nil && !errors.Is(err, context.Canceled) {
				observability.WithError(err).Warn("background tasks stopped with error")
			}
		case <-time.After(10 * time.Second):
			observability.Warn("background tasks did not stop in time")
		}
	}
	d.app.Shutdown(ctx)
}

func (d *Desktop) context() context.Context {
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}

// GetRows returns the enriched rows newest first
func (d *Desktop) GetRows(hideNegative bool) []models.Position {
	return d.app.Rows(hideNegative)
}

// GetStatus returns the task status shown in the status bar
func (d *Desktop) GetStatus() tracker.StatusSnapshot {
	return d.app.Status()
}

// RefreshUIDs rediscovers the traders to poll
func (d *Desktop) RefreshUIDs() ([]string, error) {
	return d.app.RefreshUIDs(d.context())
}

// ExportCSV returns the visible rows as CSV text
func (d *Desktop) ExportCSV(hideNegative bool) (string, error) {
	return d.app.CSV(hideNegative)
}

// Recommend summarizes the visible rows
func (d *Desktop) Recommend(hideNegative bool) (*models.Summary, error) {
	return d.app.Recommend(d.context(), hideNegative)
}

// RecommendOrders asks the upstream for its orders summary
func (d *Desktop) RecommendOrders() (*models.Summary, error) {
	return d.app.RecommendOrders(d.context())
}

// GetAPIKeyStatus returns the masked key status
func (d *Desktop) GetAPIKeyStatus() settings.KeyStatus {
	return d.app.KeyStatus()
}

// SetAPIKey stores the internal API key
func (d *Desktop) SetAPIKey(key string) error {
	return d.app.SetAPIKey(key)
}

// ClearAPIKey removes the stored key
func (d *Desktop) ClearAPIKey() error {
	return d.app.ClearAPIKey()
}
