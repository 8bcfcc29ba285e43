package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlResumeChunks returns the chunk-table DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlResumeChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS resume_chunks (
    id          TEXT         PRIMARY KEY,
    cv_id       TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    section     TEXT         NOT NULL DEFAULT '',
    uploaded_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_resume_chunks_cv_id
    ON resume_chunks (cv_id);

CREATE INDEX IF NOT EXISTS idx_resume_chunks_embedding
    ON resume_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the resume_chunks table and the pgvector
// extension exist. It is idempotent and safe to call on every application
// start.
//
// embeddingDimensions must match the vector model configured for your
// deployment. Changing this value after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlResumeChunks(embeddingDimensions)); err != nil {
		return fmt.Errorf("resume migrate: %w", err)
	}
	return nil
}
