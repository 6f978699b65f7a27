// Package tracker owns the live table of leader positions and the background
// tasks that keep it current.
package tracker

import (
	"sort"
	"sync"

	"whale-futures/models"
	"whale-futures/observability"
)

// BatchResult counts what one ApplyBatch did
type BatchResult struct {
	Upserted int
	Pruned   int
}

// Store is the keyed set of enriched positions plus the price map they are
// enriched against. Every mutation runs under one lock, so the order poller
// and the price refresher never interleave inside an update.
type Store struct {
	mu       sync.Mutex
	rows     map[string]models.Position
	prices   models.PriceMap
	onChange []func(rows []models.Position)
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		rows:   make(map[string]models.Position),
		prices: make(models.PriceMap),
	}
}

// OnChange registers fn to receive a snapshot after every mutation. fn runs
// on the mutating goroutine, outside the store lock, so snapshots from
// concurrent mutations can arrive out of order; consumers that need the
// latest rows should re-read them.
func (s *Store) OnChange(fn func(rows []models.Position)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// ApplyBatch merges the positions returned for one batch of trader UIDs.
// Stored rows of those traders that are absent from records are removed
// first; rows of traders outside batchUIDs are never touched. Each incoming
// record is then shallow-merged onto the stored row with the same id and
// re-enriched. Records without an id are skipped.
func (s *Store) ApplyBatch(records []models.Position, batchUIDs []string) BatchResult {
	fresh := make(map[string]map[string]struct{})
	for _, r := range records {
		if r.TraderUID == "" || r.ID == "" {
			continue
		}
		ids, ok := fresh[r.TraderUID]
		if !ok {
			ids = make(map[string]struct{})
			fresh[r.TraderUID] = ids
		}
		ids[r.ID] = struct{}{}
	}

	inBatch := make(map[string]struct{}, len(batchUIDs))
	for _, uid := range batchUIDs {
		inBatch[uid] = struct{}{}
	}

	var result BatchResult

	s.mu.Lock()
	for id, row := range s.rows {
		if _, ok := inBatch[row.TraderUID]; !ok {
			continue
		}
		if _, ok := fresh[row.TraderUID][id]; !ok {
			delete(s.rows, id)
			result.Pruned++
		}
	}

	for _, r := range records {
		if r.ID == "" {
			continue
		}
		merged := r
		if existing, ok := s.rows[r.ID]; ok {
			merged = existing.Merge(r)
		}
		s.rows[r.ID] = models.Enrich(merged, s.prices)
		result.Upserted++
	}
	snapshot, callbacks := s.snapshotLocked()
	s.mu.Unlock()

	metrics := observability.GetMetrics()
	metrics.SetRows(len(snapshot))
	metrics.RecordPruned(result.Pruned)

	notify(callbacks, snapshot)
	return result
}

// RefreshPrices merges prices into the price map, later values winning, and
// re-enriches every stored row against the result
func (s *Store) RefreshPrices(prices models.PriceMap) {
	s.mu.Lock()
	for symbol, price := range prices {
		s.prices[symbol] = price
	}
	for id, row := range s.rows {
		s.rows[id] = models.Enrich(row, s.prices)
	}
	snapshot, callbacks := s.snapshotLocked()
	s.mu.Unlock()

	notify(callbacks, snapshot)
}

// Rows returns a snapshot of the stored rows in unspecified order
func (s *Store) Rows() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, _ := s.snapshotLocked()
	return rows
}

// Get returns the stored row with the given id
func (s *Store) Get(id string) (models.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	return row, ok
}

// Len returns the number of stored rows
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// OpenSymbols returns the sorted, de-duplicated symbols of rows that still
// need a live price
func (s *Store) OpenSymbols() []string {
	s.mu.Lock()
	seen := make(map[string]struct{})
	for _, row := range s.rows {
		if row.Symbol == "" || row.IsClosed() {
			continue
		}
		seen[row.Symbol] = struct{}{}
	}
	s.mu.Unlock()

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Prices returns a copy of the current price map
func (s *Store) Prices() models.PriceMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices.Clone()
}

func (s *Store) snapshotLocked() ([]models.Position, []func([]models.Position)) {
	rows := make([]models.Position, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	return rows, s.onChange
}

func notify(callbacks []func([]models.Position), rows []models.Position) {
	for _, fn := range callbacks {
		fn(rows)
	}
}

// SortByOpenAtDesc returns rows ordered newest first. Ties keep id order so
// the display is stable between polls.
func SortByOpenAtDesc(rows []models.Position) []models.Position {
	out := make([]models.Position, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OpenAt != out[j].OpenAt {
			return out[i].OpenAt > out[j].OpenAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FilterNonNegativePNL keeps the rows whose PNL is defined and not negative
func FilterNonNegativePNL(rows []models.Position) []models.Position {
	out := make([]models.Position, 0, len(rows))
	for _, row := range rows {
		if row.PNL.Valid && !row.PNL.Decimal.IsNegative() {
			out = append(out, row)
		}
	}
	return out
}
