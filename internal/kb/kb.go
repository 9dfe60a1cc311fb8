// Package kb retrieves knowledge-base context for inbound messages:
// it embeds the query, searches the vector index, filters by similarity
// threshold, and assembles a bounded context string for the generator.
package kb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/intake/internal/retry"
)

// Source is one knowledge-base document returned for a query.
// Score is cosine similarity in [0,1], higher is closer.
type Source struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// Embedder turns query text into a vector. Implementations live in
// kb/ollama; tests substitute in-memory fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	CheckHealth(ctx context.Context) error
}

// Index is the nearest-neighbour store. Search returns up to limit
// candidates ordered by descending similarity, unfiltered.
type Index interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]Source, error)
	Count(ctx context.Context) (int, error)
}

const contextSeparator = "\n\n---\n\n"

// minTailChars is the smallest truncated block worth keeping when the
// context budget runs out mid-source.
const minTailChars = 100

// Options tune retrieval; zero values fall back to the service defaults.
type Options struct {
	Threshold  float64
	TopK       int
	MaxContext int
	Retry      retry.Policy
}

// Retriever embeds queries and searches the index.
type Retriever struct {
	embedder   Embedder
	index      Index
	threshold  float64
	topK       int
	maxContext int
	policy     retry.Policy
	log        log.Logger
}

// New builds a Retriever over the given embedder and index.
func New(embedder Embedder, index Index, opts Options, logger log.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxContext <= 0 {
		opts.MaxContext = 2000
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Default()
	}
	return &Retriever{
		embedder:   embedder,
		index:      index,
		threshold:  opts.Threshold,
		topK:       opts.TopK,
		maxContext: opts.MaxContext,
		policy:     opts.Retry,
		log:        logger.With("component", "kb"),
	}
}

// Retrieve returns the sources scoring at or above the threshold,
// ordered by descending similarity, at most TopK of them. A blank
// query returns no sources and no error. Embedding or index failures
// are returned after the retry policy is exhausted; the caller decides
// whether to degrade.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Source, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	embedding, err := retry.Do(ctx, r.policy, func() ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := retry.Do(ctx, r.policy, func() ([]Source, error) {
		return r.index.Search(ctx, embedding, r.topK)
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	kept := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= r.threshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > r.topK {
		kept = kept[:r.topK]
	}

	r.log.Info(ctx, "knowledge retrieved",
		"candidates", len(candidates),
		"kept", len(kept),
		"threshold", r.threshold)
	return kept, nil
}

// Context assembles the prompt context from retrieved sources, capped
// at the configured character budget. Each source renders as a titled
// block; blocks are separated, and the final block is truncated only
// when enough of it remains to be useful.
func (r *Retriever) Context(sources []Source) string {
	var b strings.Builder
	for i, s := range sources {
		block := fmt.Sprintf("[Source: %s]\n%s", s.Title, s.Content)
		sep := ""
		if i > 0 {
			sep = contextSeparator
		}
		remaining := r.maxContext - b.Len() - len(sep)
		if len(block) <= remaining {
			b.WriteString(sep)
			b.WriteString(block)
			continue
		}
		if remaining > minTailChars {
			b.WriteString(sep)
			b.WriteString(block[:remaining])
		}
		break
	}
	return b.String()
}

// Count reports how many documents the index holds, for health checks.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.index.Count(ctx)
}

// CheckHealth probes the embedding backend.
func (r *Retriever) CheckHealth(ctx context.Context) error {
	return r.embedder.CheckHealth(ctx)
}
