package workflow

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the workflow subsystem.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	StageOutcomes    *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RetrievalSources prometheus.Histogram
	GenerationTokens prometheus.Histogram
	Fallbacks        prometheus.Counter
	TicketPriority   *prometheus.CounterVec
}

// NewMetrics registers and returns workflow metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_runs_total",
			Help: "Total workflow runs by final state.",
		}, []string{"state"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_run_duration_seconds",
			Help:    "Duration of workflow runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"state"}),
		StageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_stage_outcomes_total",
			Help: "Stage completions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"stage"}),
		RetrievalSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_retrieval_sources",
			Help:    "Knowledge-base sources kept per run after filtering.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		GenerationTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_generation_tokens",
			Help:    "Tokens consumed per generation call.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10), // 64 .. ~32768
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_generation_fallbacks_total",
			Help: "Runs classified by the deterministic fallback.",
		}),
		TicketPriority: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_ticket_priority_total",
			Help: "Created incidents by priority.",
		}, []string{"priority"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageOutcomes,
		m.StageDuration,
		m.RetrievalSources,
		m.GenerationTokens,
		m.Fallbacks,
		m.TicketPriority,
	)

	return m
}

// Hooks returns workflow hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnStage: func(stage string, outcome Outcome, duration float64) {
			m.StageOutcomes.WithLabelValues(stage, string(outcome)).Inc()
			m.StageDuration.WithLabelValues(stage).Observe(duration)
		},
		OnComplete: func(e *CompleteEvent) {
			m.RunsTotal.WithLabelValues(string(e.State)).Inc()
			m.RunDuration.WithLabelValues(string(e.State)).Observe(e.Duration)
			m.RetrievalSources.Observe(float64(e.Sources))
			m.GenerationTokens.Observe(float64(e.TokensUsed))
			if e.Fallback {
				m.Fallbacks.Inc()
			}
			if e.State == StateCompleted {
				m.TicketPriority.WithLabelValues(fmt.Sprintf("%d", e.Priority)).Inc()
			}
		},
	}
}
