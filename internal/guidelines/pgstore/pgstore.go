// Package pgstore provides a PostgreSQL implementation of guidelines.Store
// backed by weighted full-text search.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaibhavuttam8/triade-agent/internal/guidelines"
)

var tracer = otel.Tracer("github.com/vaibhavuttam8/triade-agent/internal/guidelines/pgstore")

//go:embed schema.sql
var schema string

// Store serves guideline sections from PostgreSQL. Heading matches rank
// above body matches via tsvector weights.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool remains
// owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Search returns up to k sections ranked by full-text relevance. Ties
// keep document order.
func (s *Store) Search(ctx context.Context, query string, k int) ([]guidelines.Section, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "pgstore.Search", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, heading, content
		 FROM guideline_sections
		 WHERE tsv @@ websearch_to_tsquery('english', $1)
		 ORDER BY ts_rank(tsv, websearch_to_tsquery('english', $1)) DESC, position
		 LIMIT $2`,
		query, k,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	var out []guidelines.Section
	for rows.Next() {
		var sec guidelines.Section
		if err := rows.Scan(&sec.ID, &sec.Heading, &sec.Content); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	span.SetAttributes(attribute.Int("frontdesk.guidelines.hits", len(out)))
	return out, nil
}

// ReplaceAll swaps the stored document for the given sections in one
// transaction. Called at startup to seed from a guideline file.
func (s *Store) ReplaceAll(ctx context.Context, sections []guidelines.Section) error {
	ctx, span := tracer.Start(ctx, "pgstore.ReplaceAll", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
		attribute.Int("frontdesk.guidelines.sections", len(sections)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM guideline_sections`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("clear sections: %w", err)
	}

	for i, sec := range sections {
		_, err := tx.Exec(ctx,
			`INSERT INTO guideline_sections (id, heading, content, position) VALUES ($1, $2, $3, $4)`,
			sec.ID, sec.Heading, sec.Content, i,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("insert section %s: %w", sec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored sections.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Count", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM guideline_sections`).Scan(&n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("count sections: %w", err)
	}
	return n, nil
}
