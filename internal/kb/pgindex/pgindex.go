// Package pgindex provides the pgvector-backed implementation of kb.Index.
package pgindex

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/linnemanlabs/intake/internal/kb"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/kb/pgindex")

//go:embed schema.sql
var schema string

// Index searches knowledge-base documents in PostgreSQL with pgvector.
// Cosine distance from the <=> operator is converted to similarity.
type Index struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Index. The pool must have
// pgvector types registered (see postgres.NewPool).
func New(ctx context.Context, pool *pgxpool.Pool) (*Index, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Index{pool: pool}, nil
}

// Search returns up to limit documents ordered by descending cosine
// similarity to the query embedding.
func (s *Index) Search(ctx context.Context, embedding []float32, limit int) ([]kb.Source, error) {
	ctx, span := tracer.Start(ctx, "pgindex.Search", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
		attribute.Int("kb.limit", limit),
	))
	defer span.End()

	query := `SELECT id, title, content, url, 1 - (embedding <=> $1) AS score
		FROM kb_documents
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var sources []kb.Source
	for rows.Next() {
		var src kb.Source
		if err := rows.Scan(&src.ID, &src.Title, &src.Content, &src.URL, &src.Score); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan document: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	span.SetAttributes(attribute.Int("kb.results", len(sources)))
	return sources, nil
}

// Add upserts a document with its embedding.
func (s *Index) Add(ctx context.Context, source kb.Source, embedding []float32) error {
	ctx, span := tracer.Start(ctx, "pgindex.Add", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO kb_documents (id, title, content, url, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title     = EXCLUDED.title,
			content   = EXCLUDED.content,
			url       = EXCLUDED.url,
			embedding = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, query, source.ID, source.Title, source.Content, source.URL, pgvector.NewVector(embedding))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Count reports the number of indexed documents.
func (s *Index) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "pgindex.Count", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM kb_documents`).Scan(&n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
