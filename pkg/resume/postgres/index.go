package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Maratmain/ai-hr/pkg/resume"
)

// IndexChunk implements [resume.Index]. It upserts a pre-embedded chunk into
// the resume_chunks table. If a chunk with the same ID already exists it is
// completely replaced.
func (s *Store) IndexChunk(ctx context.Context, chunk resume.Chunk) error {
	const q = `
		INSERT INTO resume_chunks
		    (id, cv_id, content, embedding, section, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    cv_id       = EXCLUDED.cv_id,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding,
		    section     = EXCLUDED.section,
		    uploaded_at = EXCLUDED.uploaded_at`

	vec := pgvector.NewVector(chunk.Embedding)
	_, err := s.pool.Exec(ctx, q,
		chunk.ID,
		chunk.CVID,
		chunk.Content,
		vec,
		chunk.Section,
		chunk.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("resume index: index chunk: %w", err)
	}
	return nil
}

// Search implements [resume.Index]. It finds the topK chunks whose embeddings
// are closest (cosine distance) to the supplied query embedding, optionally
// filtered by filter, and converts distance into a similarity score so that
// results below minScore can be dropped.
//
// Results are ordered by descending Score (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, minScore float64, filter resume.Filter) ([]resume.SearchResult, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.CVID != "" {
		conditions = append(conditions, "cv_id = "+next(filter.CVID))
	}
	if filter.Section != "" {
		conditions = append(conditions, "section = "+next(filter.Section))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, cv_id, content, embedding, section, uploaded_at,
		       embedding <=> $1 AS distance
		FROM   resume_chunks
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("resume index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (resume.SearchResult, error) {
		var (
			sr       resume.SearchResult
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&sr.Chunk.ID,
			&sr.Chunk.CVID,
			&sr.Chunk.Content,
			&vec,
			&sr.Chunk.Section,
			&sr.Chunk.UploadedAt,
			&distance,
		); err != nil {
			return resume.SearchResult{}, err
		}
		sr.Chunk.Embedding = vec.Slice()
		sr.Score = 1 - distance
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resume index: scan rows: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if minScore > 0 && r.Score < minScore {
			continue
		}
		filtered = append(filtered, r)
	}
	if filtered == nil {
		filtered = []resume.SearchResult{}
	}
	return filtered, nil
}

// DeleteCV implements [resume.Index]. Deleting an unknown CVID is not an error.
func (s *Store) DeleteCV(ctx context.Context, cvID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM resume_chunks WHERE cv_id = $1`, cvID); err != nil {
		return fmt.Errorf("resume index: delete cv: %w", err)
	}
	return nil
}

// Count implements [resume.Index].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM resume_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("resume index: count: %w", err)
	}
	return n, nil
}
