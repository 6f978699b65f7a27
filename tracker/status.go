package tracker

import (
	"sync"
	"time"
)

// Status records what the background tasks last did. Failures never stop a
// task; they are kept here for display until the next success of the same
// kind clears them.
type Status struct {
	mu   sync.RWMutex
	snap StatusSnapshot
	now  func() time.Time
}

// StatusSnapshot is a point-in-time copy of Status
type StatusSnapshot struct {
	LastError     string    `json:"lastError,omitempty"`
	LastErrorAt   time.Time `json:"lastErrorAt,omitzero"`
	LastBatchAt   time.Time `json:"lastBatchAt,omitzero"`
	LastPriceAt   time.Time `json:"lastPriceAt,omitzero"`
	LastRefreshAt time.Time `json:"lastUidRefreshAt,omitzero"`
	Passes        int64     `json:"passes"`
	Batches       int64     `json:"batches"`
	BatchErrors   int64     `json:"batchErrors"`
	PriceTicks    int64     `json:"priceTicks"`
	PriceErrors   int64     `json:"priceErrors"`
	Refreshing    bool      `json:"refreshing"`

	errSource string
}

const (
	sourceOrders    = "orders"
	sourcePrices    = "prices"
	sourceDiscovery = "discovery"
)

// NewStatus creates an empty Status
func NewStatus() *Status {
	return &Status{now: time.Now}
}

// Snapshot returns a copy of the current status
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Status) recordBatch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Batches++
	if err != nil {
		s.snap.BatchErrors++
		s.setErrorLocked(sourceOrders, err)
		return
	}
	s.snap.LastBatchAt = s.now()
	s.clearErrorLocked(sourceOrders)
}

func (s *Status) recordPass() {
	s.mu.Lock()
	s.snap.Passes++
	s.mu.Unlock()
}

func (s *Status) recordPrices(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.PriceTicks++
	if err != nil {
		s.snap.PriceErrors++
		s.setErrorLocked(sourcePrices, err)
		return
	}
	s.snap.LastPriceAt = s.now()
	s.clearErrorLocked(sourcePrices)
}

func (s *Status) setRefreshing(on bool) {
	s.mu.Lock()
	s.snap.Refreshing = on
	s.mu.Unlock()
}

func (s *Status) recordDiscovery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.setErrorLocked(sourceDiscovery, err)
		return
	}
	s.snap.LastRefreshAt = s.now()
	s.clearErrorLocked(sourceDiscovery)
}

func (s *Status) setErrorLocked(source string, err error) {
	s.snap.LastError = err.Error()
	s.snap.LastErrorAt = s.now()
	s.snap.errSource = source
}

// clearErrorLocked drops the last error only when source produced it
func (s *Status) clearErrorLocked(source string) {
	if s.snap.errSource == source {
		s.snap.LastError = ""
		s.snap.LastErrorAt = time.Time{}
		s.snap.errSource = ""
	}
}
