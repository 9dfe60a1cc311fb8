// Package gen turns a support message plus retrieved knowledge-base
// context into a structured incident classification. Parsing is strict:
// a response that fails the schema yields the deterministic fallback,
// never an error to the caller.
package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/intake/internal/kb"
	"github.com/linnemanlabs/intake/internal/message"
	"github.com/linnemanlabs/intake/internal/retry"
)

// Provider is the interface for any LLM backend.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single-shot generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the raw model output and token usage.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// FallbackCategory is used when the model output cannot be trusted.
const FallbackCategory = "Uncategorized"

// Result is the classification consumed by the incident builder.
// Fallback marks results synthesized from the message itself after the
// model output failed validation; FallbackReason says why.
type Result struct {
	ShortDescription   string   `json:"short_description"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Urgency            int      `json:"urgency"`
	Impact             int      `json:"impact"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
	KBReferences       []string `json:"kb_references,omitempty"`

	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Model          string `json:"model,omitempty"`
	TokensUsed     int    `json:"tokens_used,omitempty"`
}

// Options tune the generation call; zero values fall back to defaults.
type Options struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Retry       retry.Policy
}

// Generator runs the classification call and enforces the schema.
type Generator struct {
	provider    Provider
	timeout     time.Duration
	maxTokens   int
	temperature float64
	policy      retry.Policy
	log         log.Logger
}

// New creates a Generator over the given provider.
func New(provider Provider, opts Options, logger log.Logger) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Default()
	}
	return &Generator{
		provider:    provider,
		timeout:     opts.Timeout,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		policy:      opts.Retry,
		log:         logger.With("component", "gen"),
	}
}

// Generate classifies the message. The returned Result is always usable:
// provider failures, malformed JSON, and schema violations degrade to the
// fallback with the reason recorded.
func (g *Generator) Generate(ctx context.Context, msg *message.Message, sources []kb.Source, kbContext string) *Result {
	req := &Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(msg, kbContext),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := retry.Do(callCtx, g.policy, func() (*Response, error) {
		return g.provider.Generate(callCtx, req)
	})
	if err != nil {
		g.log.Warn(ctx, "generation failed, using fallback", "error", err.Error())
		return g.fallback(msg, fmt.Sprintf("generation call failed: %v", err))
	}

	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
	g.log.Info(ctx, "generation response",
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	r, err := parseResult(resp.Text)
	if err != nil {
		g.log.Warn(ctx, "model output rejected, using fallback", "error", err.Error())
		fb := g.fallback(msg, err.Error())
		fb.Model = resp.Model
		fb.TokensUsed = tokens
		return fb
	}

	r.KBReferences = filterReferences(r.KBReferences, sources)
	r.Model = resp.Model
	r.TokensUsed = tokens
	return r
}

// fallback builds the deterministic degraded result from the message.
func (g *Generator) fallback(msg *message.Message, reason string) *Result {
	return &Result{
		ShortDescription: msg.Subject,
		Description:      msg.Body,
		Category:         FallbackCategory,
		Urgency:          3,
		Impact:           3,
		Fallback:         true,
		FallbackReason:   reason,
	}
}

// parseResult extracts the JSON object from raw model output and
// enforces the schema: required fields present, urgency and impact in 1..5.
func parseResult(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var r Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("malformed JSON in model output: %w", err)
	}

	if strings.TrimSpace(r.ShortDescription) == "" {
		return nil, fmt.Errorf("model output missing short_description")
	}
	if strings.TrimSpace(r.Description) == "" {
		return nil, fmt.Errorf("model output missing description")
	}
	if strings.TrimSpace(r.Category) == "" {
		return nil, fmt.Errorf("model output missing category")
	}
	if r.Urgency < 1 || r.Urgency > 5 {
		return nil, fmt.Errorf("model output urgency %d out of range 1..5", r.Urgency)
	}
	if r.Impact < 1 || r.Impact > 5 {
		return nil, fmt.Errorf("model output impact %d out of range 1..5", r.Impact)
	}

	// The fallback fields belong to us, not the model.
	r.Fallback = false
	r.FallbackReason = ""
	return &r, nil
}

// filterReferences keeps only references naming a retrieved source title,
// so the ticket never cites documents the model invented. References are
// a set: repeated titles from the model are kept once.
func filterReferences(refs []string, sources []kb.Source) []string {
	if len(refs) == 0 || len(sources) == 0 {
		return nil
	}
	titles := make(map[string]bool, len(sources))
	for _, s := range sources {
		titles[strings.ToLower(strings.TrimSpace(s.Title))] = true
	}
	seen := make(map[string]bool, len(refs))
	var kept []string
	for _, ref := range refs {
		key := strings.ToLower(strings.TrimSpace(ref))
		if titles[key] && !seen[key] {
			seen[key] = true
			kept = append(kept, ref)
		}
	}
	return kept
}
