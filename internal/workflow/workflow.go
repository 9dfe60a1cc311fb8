// Package workflow orchestrates the intake pipeline: retrieval,
// generation, ticket assembly, ticket creation, and notification.
// Only ticket creation is fatal; every other stage degrades.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/intake/internal/gen"
	"github.com/linnemanlabs/intake/internal/kb"
	"github.com/linnemanlabs/intake/internal/message"
	"github.com/linnemanlabs/intake/internal/notify/teams"
	"github.com/linnemanlabs/intake/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/workflow")

// State names a position in the pipeline.
type State string

const (
	StateReceived       State = "received"
	StateRetrieving     State = "retrieving"
	StateGenerating     State = "generating"
	StateBuildingTicket State = "building_ticket"
	StateCreatingTicket State = "creating_ticket"
	StateNotifying      State = "notifying"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Outcome records how a stage ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeDisabled Outcome = "disabled"
)

// Stages holds the per-stage outcomes of one run.
type Stages struct {
	Retrieval    Outcome `json:"retrieval"`
	Generation   Outcome `json:"generation"`
	Ticket       Outcome `json:"ticket"`
	Notification Outcome `json:"notification"`
}

// Result is the caller-facing record of one workflow run.
type Result struct {
	RunID      string           `json:"run_id"`
	State      State            `json:"state"`
	Stages     Stages           `json:"stages"`
	Message    *message.Message `json:"message"`
	Sources    []kb.Source      `json:"sources,omitempty"`
	Generation *gen.Result      `json:"generation,omitempty"`
	Ticket     *ticket.Ticket   `json:"ticket,omitempty"`
	Record     *ticket.Record   `json:"record,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   float64          `json:"duration_s"`
}

// Retriever finds knowledge-base sources for a query and renders the
// bounded prompt context.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]kb.Source, error)
	Context(sources []kb.Source) string
	Count(ctx context.Context) (int, error)
	CheckHealth(ctx context.Context) error
}

// Generator classifies a message; it degrades internally and never fails.
type Generator interface {
	Generate(ctx context.Context, msg *message.Message, sources []kb.Source, kbContext string) *gen.Result
}

// Ticketing creates incidents in the ticketing system.
type Ticketing interface {
	CreateIncident(ctx context.Context, t *ticket.Ticket) (*ticket.Record, error)
	CheckHealth(ctx context.Context) error
}

// Notifier posts a best-effort notification for a created incident.
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, note *teams.Notification) error
}

// Hooks lets the caller observe run milestones (wired to Prometheus by main).
type Hooks struct {
	OnStage    func(stage string, outcome Outcome, duration float64)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes a finished run for metrics.
type CompleteEvent struct {
	State      State
	Priority   int
	Fallback   bool
	Sources    int
	TokensUsed int
	Duration   float64
}

// Orchestrator drives the pipeline and tracks collaborator health.
type Orchestrator struct {
	retriever Retriever
	generator Generator
	ticketing Ticketing
	notifier  Notifier
	hooks     Hooks
	history   *History
	status    *statusBoard
	logger    log.Logger
}

// New creates an Orchestrator. historySize bounds the in-memory result
// ring served by the result endpoint.
func New(retriever Retriever, generator Generator, ticketing Ticketing, notifier Notifier, historySize int, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		generator: generator,
		ticketing: ticketing,
		notifier:  notifier,
		history:   NewHistory(historySize),
		status:    newStatusBoard(),
		logger:    logger.With("component", "workflow"),
	}
}

// SetHooks installs observation hooks. Call before the first Process.
func (o *Orchestrator) SetHooks(h Hooks) { o.hooks = h }

// Get returns a retained run result by ID.
func (o *Orchestrator) Get(id string) (*Result, bool) {
	return o.history.Get(id)
}

// Process runs the full pipeline for one message. The returned Result
// is always complete: a run only ends in StateFailed when the incident
// could not be created; retrieval and generation failures degrade, and
// notification failures are recorded but never change the state.
func (o *Orchestrator) Process(ctx context.Context, msg *message.Message) *Result {
	start := time.Now()
	r := &Result{
		RunID:     ulid.Make().String(),
		State:     StateReceived,
		Message:   msg,
		StartedAt: start,
	}

	ctx, span := tracer.Start(ctx, "workflow.Process", trace.WithAttributes(
		attribute.String("workflow.run_id", r.RunID),
	))
	defer span.End()

	L := o.logger.With("run_id", r.RunID, "from", msg.From)
	L.Info(ctx, "workflow started", "subject", msg.Subject)

	sources, kbContext := o.retrieve(ctx, L, r, msg)
	genResult := o.generate(ctx, L, r, msg, sources, kbContext)

	r.State = StateBuildingTicket
	r.Ticket = ticket.Build(msg, genResult, sources)
	span.SetAttributes(
		attribute.Int("ticket.priority", r.Ticket.Priority),
		attribute.Bool("generation.fallback", genResult.Fallback),
	)

	if !o.createTicket(ctx, L, r) {
		o.finish(ctx, span, L, r)
		return r
	}

	o.notify(ctx, L, r, sources)

	r.State = StateCompleted
	o.finish(ctx, span, L, r)
	return r
}

func (o *Orchestrator) retrieve(ctx context.Context, L log.Logger, r *Result, msg *message.Message) ([]kb.Source, string) {
	r.State = StateRetrieving
	stageStart := time.Now()

	sources, err := o.retriever.Retrieve(ctx, msg.Query())
	if err != nil {
		// Recoverable: the run continues without knowledge-base context.
		L.Warn(ctx, "retrieval unavailable, continuing without context", "error", err.Error())
		r.Stages.Retrieval = OutcomeDegraded
		o.status.setRetrieval(false)
		o.stageDone("retrieval", OutcomeDegraded, stageStart)
		return nil, ""
	}

	r.Stages.Retrieval = OutcomeOK
	r.Sources = sources
	o.status.setRetrieval(true)
	o.stageDone("retrieval", OutcomeOK, stageStart)
	return sources, o.retriever.Context(sources)
}

func (o *Orchestrator) generate(ctx context.Context, L log.Logger, r *Result, msg *message.Message, sources []kb.Source, kbContext string) *gen.Result {
	r.State = StateGenerating
	stageStart := time.Now()

	genResult := o.generator.Generate(ctx, msg, sources, kbContext)
	r.Generation = genResult

	outcome := OutcomeOK
	if genResult.Fallback {
		outcome = OutcomeDegraded
		L.Warn(ctx, "generation degraded", "reason", genResult.FallbackReason)
	}
	r.Stages.Generation = outcome
	o.status.setGeneration(!genResult.Fallback)
	o.stageDone("generation", outcome, stageStart)
	return genResult
}

// createTicket reports whether the run may continue.
func (o *Orchestrator) createTicket(ctx context.Context, L log.Logger, r *Result) bool {
	r.State = StateCreatingTicket
	stageStart := time.Now()

	record, err := o.ticketing.CreateIncident(ctx, r.Ticket)
	if err != nil {
		L.Error(ctx, err, "ticket creation failed")
		r.State = StateFailed
		r.Stages.Ticket = OutcomeFailed
		r.Stages.Notification = OutcomeSkipped
		r.Error = fmt.Sprintf("create incident: %v", err)
		o.status.setTicketing(false)
		o.stageDone("ticket", OutcomeFailed, stageStart)
		return false
	}

	r.Record = record
	r.Stages.Ticket = OutcomeOK
	o.status.setTicketing(true)
	o.stageDone("ticket", OutcomeOK, stageStart)
	L.Info(ctx, "incident created", "number", record.Number, "priority", r.Ticket.Priority)
	return true
}

func (o *Orchestrator) notify(ctx context.Context, L log.Logger, r *Result, sources []kb.Source) {
	r.State = StateNotifying
	stageStart := time.Now()

	if !o.notifier.Enabled() {
		r.Stages.Notification = OutcomeDisabled
		o.stageDone("notification", OutcomeDisabled, stageStart)
		return
	}

	note := &teams.Notification{
		Record:   r.Record,
		Ticket:   r.Ticket,
		Sources:  sources,
		Fallback: r.Generation.Fallback,
	}
	if err := o.notifier.Send(ctx, note); err != nil {
		// Best effort: the incident exists, the run still succeeds.
		L.Warn(ctx, "notification failed", "error", err.Error())
		r.Stages.Notification = OutcomeFailed
		o.status.setNotification(false)
		o.stageDone("notification", OutcomeFailed, stageStart)
		return
	}

	r.Stages.Notification = OutcomeOK
	o.status.setNotification(true)
	o.stageDone("notification", OutcomeOK, stageStart)
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, L log.Logger, r *Result) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt).Seconds()
	o.history.Put(r)

	span.SetAttributes(attribute.String("workflow.state", string(r.State)))
	if r.State == StateFailed {
		span.SetStatus(codes.Error, r.Error)
	}

	if o.hooks.OnComplete != nil {
		e := &CompleteEvent{
			State:    r.State,
			Sources:  len(r.Sources),
			Duration: r.Duration,
		}
		if r.Ticket != nil {
			e.Priority = r.Ticket.Priority
		}
		if r.Generation != nil {
			e.Fallback = r.Generation.Fallback
			e.TokensUsed = r.Generation.TokensUsed
		}
		o.hooks.OnComplete(e)
	}

	L.Info(ctx, "workflow finished",
		"state", r.State,
		"duration", r.Duration,
		"retrieval", r.Stages.Retrieval,
		"generation", r.Stages.Generation,
		"ticket", r.Stages.Ticket,
		"notification", r.Stages.Notification,
	)
}

func (o *Orchestrator) stageDone(stage string, outcome Outcome, start time.Time) {
	if o.hooks.OnStage != nil {
		o.hooks.OnStage(stage, outcome, time.Since(start).Seconds())
	}
}
