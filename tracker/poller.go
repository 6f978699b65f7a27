package tracker

import (
	"context"
	"time"

	"whale-futures/observability"
	"whale-futures/services"
)

// PollerConfig controls the order-polling cadence
type PollerConfig struct {
	BatchSize       int
	PerRequestDelay time.Duration
	EmptyListDelay  time.Duration
}

// OrderPoller walks the UID list in fixed-size batches, fetching each
// batch's positions and applying them to the store. A pass starts again as
// soon as the previous one ends.
type OrderPoller struct {
	orders services.OrdersFetcher
	store  *Store
	uids   *UIDList
	status *Status
	cfg    PollerConfig
}

// NewOrderPoller creates a new OrderPoller
func NewOrderPoller(orders services.OrdersFetcher, store *Store, uids *UIDList, status *Status, cfg PollerConfig) *OrderPoller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.EmptyListDelay <= 0 {
		cfg.EmptyListDelay = 2 * time.Second
	}
	return &OrderPoller{
		orders: orders,
		store:  store,
		uids:   uids,
		status: status,
		cfg:    cfg,
	}
}

// Name identifies the task in logs
func (p *OrderPoller) Name() string { return "order-poller" }

// Run polls until ctx is cancelled. Request failures are recorded and the
// loop moves on to the next batch.
func (p *OrderPoller) Run(ctx context.Context) error {
	log := observability.WithTask(p.Name())
	log.Info("order poller started", "batch_size", p.cfg.BatchSize)

	for ctx.Err() == nil {
		if p.uids.Len() == 0 {
			if !sleepCtx(ctx, p.cfg.EmptyListDelay) {
				break
			}
			continue
		}
		p.RunPass(ctx)
	}

	log.Info("order poller stopped")
	return nil
}

// RunPass performs one pass over a snapshot of the UID list and returns the
// number of batches that were requested
func (p *OrderPoller) RunPass(ctx context.Context) int {
	requested := 0
	for _, batch := range chunk(p.uids.Snapshot(), p.cfg.BatchSize) {
		if ctx.Err() != nil {
			return requested
		}
		p.pollBatch(ctx, batch)
		requested++
		if !sleepCtx(ctx, p.cfg.PerRequestDelay) {
			return requested
		}
	}

	p.status.recordPass()
	observability.GetMetrics().RecordPollPass()
	return requested
}

func (p *OrderPoller) pollBatch(ctx context.Context, batch []string) {
	start := time.Now()
	records, err := p.orders.FetchOrders(ctx, batch)
	if ctx.Err() != nil {
		return
	}

	observability.GetMetrics().RecordPollBatch(err, time.Since(start))
	p.status.recordBatch(err)
	if err != nil {
		observability.WithBatch(batch).Warn("order batch failed", "error", err)
		return
	}

	result := p.store.ApplyBatch(records, batch)
	observability.WithBatch(batch).Debug("order batch applied",
		"records", len(records),
		"upserted", result.Upserted,
		"pruned", result.Pruned)
}

// sleepCtx waits for d or until ctx ends; it reports whether the full wait
// elapsed
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
