// Package intakeapi exposes the intake pipeline over HTTP: message
// submission, run lookup, and component health.
package intakeapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/intake/internal/message"
	"github.com/linnemanlabs/intake/internal/workflow"
)

// Service defines the business operations intakeapi needs.
type Service interface {
	Process(ctx context.Context, msg *message.Message) *workflow.Result
	Get(id string) (*workflow.Result, bool)
	Health(ctx context.Context) *workflow.Health
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    Service
	slots  chan struct{}
}

// New creates a new API handler. maxConcurrent bounds how many messages
// may be in flight at once; requests beyond the bound wait for a slot
// until the client gives up.
func New(logger log.Logger, svc Service, maxConcurrent int) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("workflow service is required"))
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &API{
		logger: logger,
		svc:    svc,
		slots:  make(chan struct{}, maxConcurrent),
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", a.handleSubmitMessage)
		r.Get("/workflows/{id}", a.handleGetWorkflow)
		r.Get("/health", a.handleHealth)
	})
}

func (a *API) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("intake.workflow.id", id))

	result, ok := a.svc.Get(id)
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("intake.workflow.state", string(result.State)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := a.svc.Health(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !h.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(h)
}
