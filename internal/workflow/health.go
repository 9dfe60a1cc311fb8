package workflow

import (
	"context"
	"fmt"
	"sync"
)

// ComponentHealth is the probe result for one collaborator.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Health is the aggregated component view served by the health endpoint.
type Health struct {
	Healthy   bool            `json:"healthy"`
	Ticketing ComponentHealth `json:"ticketing"`
	Knowledge ComponentHealth `json:"knowledge"`
	Notifier  ComponentHealth `json:"notifier"`
	Outcomes  LastOutcomes    `json:"last_outcomes"`
}

// LastOutcomes reports whether the most recent attempt at each
// non-fatal stage succeeded. True until a stage first fails.
type LastOutcomes struct {
	Retrieval    bool `json:"retrieval"`
	Generation   bool `json:"generation"`
	Ticketing    bool `json:"ticketing"`
	Notification bool `json:"notification"`
}

// statusBoard tracks the most recent outcome per stage across runs.
type statusBoard struct {
	mu           sync.RWMutex
	retrieval    bool
	generation   bool
	ticketing    bool
	notification bool
}

func newStatusBoard() *statusBoard {
	return &statusBoard{retrieval: true, generation: true, ticketing: true, notification: true}
}

func (b *statusBoard) setRetrieval(ok bool)    { b.mu.Lock(); b.retrieval = ok; b.mu.Unlock() }
func (b *statusBoard) setGeneration(ok bool)   { b.mu.Lock(); b.generation = ok; b.mu.Unlock() }
func (b *statusBoard) setTicketing(ok bool)    { b.mu.Lock(); b.ticketing = ok; b.mu.Unlock() }
func (b *statusBoard) setNotification(ok bool) { b.mu.Lock(); b.notification = ok; b.mu.Unlock() }

func (b *statusBoard) snapshot() LastOutcomes {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return LastOutcomes{
		Retrieval:    b.retrieval,
		Generation:   b.generation,
		Ticketing:    b.ticketing,
		Notification: b.notification,
	}
}

// Health probes the collaborators and combines them with the recorded
// stage outcomes. Overall health requires ticketing and the knowledge
// layer to respond; the notifier only reports configuration state.
func (o *Orchestrator) Health(ctx context.Context) *Health {
	h := &Health{Outcomes: o.status.snapshot()}

	if err := o.ticketing.CheckHealth(ctx); err != nil {
		h.Ticketing = ComponentHealth{Healthy: false, Detail: err.Error()}
	} else {
		h.Ticketing = ComponentHealth{Healthy: true}
	}

	if err := o.retriever.CheckHealth(ctx); err != nil {
		h.Knowledge = ComponentHealth{Healthy: false, Detail: err.Error()}
	} else if n, err := o.retriever.Count(ctx); err != nil {
		h.Knowledge = ComponentHealth{Healthy: false, Detail: err.Error()}
	} else {
		h.Knowledge = ComponentHealth{Healthy: true, Detail: fmt.Sprintf("%d documents", n)}
	}

	if o.notifier.Enabled() {
		h.Notifier = ComponentHealth{Healthy: true, Detail: "configured"}
	} else {
		h.Notifier = ComponentHealth{Healthy: true, Detail: "disabled"}
	}

	h.Healthy = h.Ticketing.Healthy && h.Knowledge.Healthy
	return h
}
