package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"whale-futures/observability"
	"whale-futures/services"
)

// ErrNoTraders is returned when no ranking yielded a single UID
var ErrNoTraders = errors.New("no traders discovered")

// ErrRefreshInProgress is returned when a refresh is already running
var ErrRefreshInProgress = errors.New("trader refresh already in progress")

// Discoverer rebuilds the UID list from the copy-trading leaderboards. It
// only runs when asked to.
type Discoverer struct {
	traders  services.TraderLister
	uids     *UIDList
	status   *Status
	orderBys []string
	delay    time.Duration

	running sync.Mutex
}

// NewDiscoverer creates a new Discoverer querying each ranking in orderBys
func NewDiscoverer(traders services.TraderLister, uids *UIDList, status *Status, orderBys []string, delay time.Duration) *Discoverer {
	return &Discoverer{
		traders:  traders,
		uids:     uids,
		status:   status,
		orderBys: orderBys,
		delay:    delay,
	}
}

// Refresh queries every ranking in turn, merges the UIDs in first-seen
// order and replaces the list. A failing ranking is skipped. When nothing at
// all was found the list is left as it was and ErrNoTraders is returned.
func (d *Discoverer) Refresh(ctx context.Context) ([]string, error) {
	if !d.running.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer d.running.Unlock()

	d.status.setRefreshing(true)
	defer d.status.setRefreshing(false)

	log := observability.WithTask("discovery")
	lists := make([][]string, 0, len(d.orderBys))
	var lastErr error

	for i, orderBy := range d.orderBys {
		if i > 0 && !sleepCtx(ctx, d.delay) {
			return nil, ctx.Err()
		}
		uids, err := d.traders.FetchTraderUIDs(ctx, orderBy)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			log.Warn("leaderboard fetch failed", "order_by", orderBy, "error", err)
			continue
		}
		log.Debug("leaderboard fetched", "order_by", orderBy, "uids", len(uids))
		lists = append(lists, uids)
	}

	merged := mergeUnique(lists...)
	var err error
	if len(merged) == 0 {
		err = ErrNoTraders
		if lastErr != nil {
			err = fmt.Errorf("%w: %w", ErrNoTraders, lastErr)
		}
	}

	observability.GetMetrics().RecordDiscovery(err)
	d.status.recordDiscovery(err)
	if err != nil {
		return nil, err
	}

	d.uids.Set(merged)
	log.Info("trader list refreshed", "uids", len(merged), "rankings", len(d.orderBys))
	return merged, nil
}
