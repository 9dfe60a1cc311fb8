package workflow

import "sync"

// History retains the most recent run results in memory for the result
// endpoint. Results are caller-facing only and are never persisted;
// when the ring is full the oldest run is dropped.
type History struct {
	mu    sync.RWMutex
	cap   int
	order []string
	runs  map[string]*Result
}

// NewHistory creates a History retaining up to capacity results.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 256
	}
	return &History{
		cap:  capacity,
		runs: make(map[string]*Result, capacity),
	}
}

// Put stores a finished result, evicting the oldest when full.
func (h *History) Put(r *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.runs[r.RunID]; !exists {
		if len(h.order) >= h.cap {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.runs, oldest)
		}
		h.order = append(h.order, r.RunID)
	}
	h.runs[r.RunID] = r
}

// Get returns a retained result by run ID.
func (h *History) Get(id string) (*Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.runs[id]
	return r, ok
}

// Len reports how many results are retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}
