// Package resume defines the storage interface for candidate CV content.
//
// A CV is ingested as a set of [Chunk] records: short text fragments (one per
// section, bullet group, or paragraph) each carrying a pre-computed embedding
// vector. During an interview the dialogue layer retrieves the chunks most
// similar to the current question and injects them into the LLM prompt, so
// follow-up questions can reference what the candidate actually wrote.
//
// The public [Index] interface lets external packages supply alternative
// storage backends (PostgreSQL/pgvector, in-memory, …). Every implementation
// must be safe for concurrent use.
package resume

import (
	"context"
	"time"
)

// Chunk is one indexed fragment of a candidate CV. It carries its pre-computed
// embedding so the index does not need to re-embed on insertion.
type Chunk struct {
	// ID is the unique identifier for this chunk (e.g., a UUID).
	ID string

	// CVID identifies the source document the chunk was extracted from.
	// All chunks of one candidate CV share the same CVID.
	CVID string

	// Content is the raw text of the chunk.
	Content string

	// Embedding is the vector representation of Content. Dimension must match
	// the index configuration (e.g., 1536 for OpenAI text-embedding-3-small).
	Embedding []float32

	// Section is an optional coarse label for where in the CV the chunk came
	// from (e.g., "experience", "skills", "education").
	Section string

	// UploadedAt is when the source document was ingested.
	UploadedAt time.Time
}

// Filter narrows a similarity search to a subset of indexed chunks.
// All non-zero fields are applied as AND conditions.
type Filter struct {
	// CVID restricts results to chunks of a single document.
	// An empty string searches across all documents.
	CVID string

	// Section restricts results to chunks with this section label.
	Section string
}

// SearchResult pairs a retrieved chunk with its similarity score in [0,1],
// where 1 means an identical embedding. Higher is more similar.
type SearchResult struct {
	// Chunk is the retrieved fragment.
	Chunk Chunk

	// Score is 1 minus the cosine distance between the chunk embedding and the
	// query embedding.
	Score float64
}

// Index is the abstraction over any resume chunk store.
//
// Callers are responsible for producing embeddings before calling IndexChunk
// or Search. Implementations must be safe for concurrent use.
type Index interface {
	// IndexChunk stores a pre-embedded chunk. If a chunk with the same ID
	// already exists it must be replaced (upsert).
	IndexChunk(ctx context.Context, chunk Chunk) error

	// Search finds the topK chunks whose embeddings are closest to the query
	// embedding, filtered by filter. Results whose Score falls below minScore
	// are dropped; pass 0 to disable the threshold.
	// Results are ordered by descending Score (most similar first).
	// Returns an empty (non-nil) slice when no chunks match.
	Search(ctx context.Context, embedding []float32, topK int, minScore float64, filter Filter) ([]SearchResult, error)

	// DeleteCV removes every chunk belonging to the given document.
	// Deleting an unknown CVID is not an error.
	DeleteCV(ctx context.Context, cvID string) error

	// Count returns the total number of indexed chunks.
	Count(ctx context.Context) (int, error)
}
