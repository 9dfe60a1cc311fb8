// Package memindex provides an in-memory vector index used when no
// database is configured, and as a test double for the pgvector index.
package memindex

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/linnemanlabs/intake/internal/kb"
)

type entry struct {
	source    kb.Source
	embedding []float32
}

// Index holds documents and their embeddings behind a mutex.
// Search scores with exact cosine similarity.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

// Add stores a document with its embedding. The embedding is copied so
// callers may reuse their slice.
func (s *Index) Add(_ context.Context, source kb.Source, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("memindex: empty embedding")
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{source: source, embedding: vec})
	return nil
}

// Search returns up to limit documents ordered by descending cosine
// similarity to the query embedding. Scores are attached to the copies
// returned; stored documents are never mutated.
func (s *Index) Search(_ context.Context, embedding []float32, limit int) ([]kb.Source, error) {
	if len(embedding) == 0 {
		return nil, errors.New("memindex: empty query embedding")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]kb.Source, 0, len(s.entries))
	for _, e := range s.entries {
		if len(e.embedding) != len(embedding) {
			continue
		}
		src := e.source
		src.Score = cosine(embedding, e.embedding)
		scored = append(scored, src)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count reports the number of stored documents.
func (s *Index) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
