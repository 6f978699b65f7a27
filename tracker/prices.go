package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"whale-futures/observability"
	"whale-futures/services"
)

// PriceRefresher periodically prices the symbols of open positions and feeds
// the result back into the store. Ticks never overlap; a tick that is still
// running when the next one is due causes that one to be skipped.
type PriceRefresher struct {
	source   services.PriceSource
	store    *Store
	status   *Status
	interval time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// NewPriceRefresher creates a new PriceRefresher
func NewPriceRefresher(source services.PriceSource, store *Store, status *Status, interval time.Duration) *PriceRefresher {
	if interval < time.Second {
		interval = time.Second
	}
	return &PriceRefresher{
		source:   source,
		store:    store,
		status:   status,
		interval: interval,
	}
}

// Name identifies the task in logs
func (r *PriceRefresher) Name() string { return "price-refresher" }

// Tick runs one refresh. It does nothing when no open position needs a price.
// Prices returned alongside an error are still merged; the error is recorded.
func (r *PriceRefresher) Tick(ctx context.Context) error {
	symbols := r.store.OpenSymbols()
	if len(symbols) == 0 {
		return nil
	}

	prices, err := r.source.FetchPrices(ctx, symbols)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	observability.GetMetrics().RecordPriceRefresh(err, len(prices))
	r.status.recordPrices(err)
	if len(prices) > 0 {
		r.store.RefreshPrices(prices)
	}
	if err != nil {
		return fmt.Errorf("price refresh: %w", err)
	}
	return nil
}

// Start schedules ticks every interval until Stop is called or ctx ends
func (r *PriceRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("price refresher already started")
	}

	logger := cronLogger{log: observability.WithTask(r.Name())}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		if ctx.Err() != nil {
			return
		}
		if err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			logger.log.Warn("price tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule price refresh: %w", err)
	}

	c.Start()
	r.cron = c
	logger.log.Info("price refresher started", "interval", r.interval)
	return nil
}

// Stop halts scheduling and waits for a running tick to finish
func (r *PriceRefresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	observability.WithTask(r.Name()).Info("price refresher stopped")
}

// Run starts the refresher and blocks until ctx is cancelled
func (r *PriceRefresher) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

// cronLogger routes cron's own logging through slog
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
