package worker

import (
	"sync"

	"vodscribe/internal/models"
)

const defaultStatusLimit = 1000

// statusTable maps addressable job ids to their stored status.
// Past the limit the oldest terminal entries are evicted.
type statusTable struct {
	mu       sync.RWMutex
	statuses map[string]models.JobStatus
	order    []string
	limit    int
}

func newStatusTable(limit int) *statusTable {
	if limit <= 0 {
		limit = defaultStatusLimit
	}
	return &statusTable{statuses: make(map[string]models.JobStatus), limit: limit}
}

// enqueued starts a new lifecycle for id. A reused id that already finished starts over;
// an id that is still pending or running keeps its status and enqueued reports false.
func (t *statusTable) enqueued(id string) bool {
	if id == "" {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[id]; ok {
		if !s.Terminal() {
			return false
		}
		t.dropOrder(id)
	}
	t.statuses[id] = models.JobStatusPending
	t.order = append(t.order, id)
	t.evict()
	return true
}

// transition moves id to the next status if the transition is allowed.
func (t *statusTable) transition(id string, to models.JobStatus) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.statuses[id]
	if !ok || !models.CanTransition(from, to) {
		return false
	}
	t.statuses[id] = to
	return true
}

func (t *statusTable) get(id string) models.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.statuses[id]; ok {
		return s
	}
	return models.JobStatusUnknown
}

func (t *statusTable) dropOrder(id string) {
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func (t *statusTable) evict() {
	if len(t.order) <= t.limit {
		return
	}
	excess := len(t.order) - t.limit
	kept := t.order[:0]
	for _, id := range t.order {
		if excess > 0 && t.statuses[id].Terminal() {
			delete(t.statuses, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}
