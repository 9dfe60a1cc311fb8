package intakeapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/intake/internal/message"
	"github.com/linnemanlabs/intake/internal/workflow"
)

// handleSubmitMessage runs the pipeline synchronously: the caller gets
// the complete workflow result in the response. Processing is bounded
// by the slot semaphore; a slow LLM backlog makes callers queue rather
// than stacking unbounded goroutines.
func (a *API) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var msg message.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	if err := msg.Validate(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	select {
	case a.slots <- struct{}{}:
		defer func() { <-a.slots }()
	case <-r.Context().Done():
		http.Error(w, `{"error":"request canceled while waiting for a slot"}`, http.StatusServiceUnavailable)
		return
	}

	result := a.svc.Process(r.Context(), &msg)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("intake.workflow.id", result.RunID),
		attribute.String("intake.workflow.state", string(result.State)),
	)

	status := http.StatusOK
	if result.State == workflow.StateFailed {
		// The incident could not be created; the message was not lost,
		// but the caller must know the run did not land a ticket.
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
