package tracker

import (
	"strings"
	"sync"

	"whale-futures/observability"
)

// UIDList is the ordered set of trader UIDs the order poller walks
type UIDList struct {
	mu   sync.RWMutex
	uids []string
}

// NewUIDList creates a list seeded with uids
func NewUIDList(uids []string) *UIDList {
	l := &UIDList{}
	l.Set(uids)
	return l
}

// Set replaces the list. Blank entries and duplicates are dropped, first
// occurrence wins.
func (l *UIDList) Set(uids []string) {
	cleaned := mergeUnique(uids)

	l.mu.Lock()
	l.uids = cleaned
	l.mu.Unlock()

	observability.GetMetrics().SetUIDs(len(cleaned))
}

// Snapshot returns a copy of the list
func (l *UIDList) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.uids))
	copy(out, l.uids)
	return out
}

// Len returns the number of UIDs
func (l *UIDList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.uids)
}

// mergeUnique concatenates lists keeping first-seen order
func mergeUnique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, uid := range list {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			if _, dup := seen[uid]; dup {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// chunk splits uids into consecutive batches of at most size
func chunk(uids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	batches := make([][]string, 0, (len(uids)+size-1)/size)
	for start := 0; start < len(uids); start += size {
		end := min(start+size, len(uids))
		batches = append(batches, uids[start:end])
	}
	return batches
}
