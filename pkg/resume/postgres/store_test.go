package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Maratmain/ai-hr/pkg/resume"
	"github.com/Maratmain/ai-hr/pkg/resume/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if AIHR_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AIHR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AIHR_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS resume_chunks CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// mustPool opens a pgxpool with pgvector types registered.
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func chunkFixture(id, cvID, content, section string, vec []float32) resume.Chunk {
	return resume.Chunk{
		ID:         id,
		CVID:       cvID,
		Content:    content,
		Embedding:  vec,
		Section:    section,
		UploadedAt: time.Now().Truncate(time.Millisecond),
	}
}

func TestIndexAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunks := []resume.Chunk{
		chunkFixture("c1", "cv-1", "Пять лет опыта с PostgreSQL и pgvector", "experience", []float32{1, 0, 0, 0}),
		chunkFixture("c2", "cv-1", "Разработка микросервисов на Go", "experience", []float32{0, 1, 0, 0}),
		chunkFixture("c3", "cv-2", "Администрирование Kubernetes", "skills", []float32{0, 0, 1, 0}),
	}
	for _, c := range chunks {
		if err := store.IndexChunk(ctx, c); err != nil {
			t.Fatalf("IndexChunk(%s): %v", c.ID, err)
		}
	}

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0, resume.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("closest chunk: got %q, want c1", results[0].Chunk.ID)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical vector: score %v, want ~1.0", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at %d", i)
		}
	}
}

func TestSearch_FilterByCV(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.IndexChunk(ctx, chunkFixture("c1", "cv-1", "a", "", []float32{1, 0, 0, 0}))
	_ = store.IndexChunk(ctx, chunkFixture("c2", "cv-2", "b", "", []float32{1, 0, 0, 0}))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0, resume.Filter{CVID: "cv-2"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.CVID != "cv-2" {
		t.Fatalf("expected only cv-2 chunks, got %+v", results)
	}
}

func TestSearch_MinScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.IndexChunk(ctx, chunkFixture("near", "cv-1", "a", "", []float32{1, 0, 0, 0}))
	_ = store.IndexChunk(ctx, chunkFixture("far", "cv-1", "b", "", []float32{-1, 0, 0, 0}))

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 10, 0.5, resume.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "near" {
		t.Fatalf("expected only the near chunk above threshold, got %+v", results)
	}
}

func TestIndexChunk_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := chunkFixture("c1", "cv-1", "original", "skills", []float32{1, 0, 0, 0})
	if err := store.IndexChunk(ctx, c); err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	c.Content = "replaced"
	if err := store.IndexChunk(ctx, c); err != nil {
		t.Fatalf("IndexChunk upsert: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 1, 0, resume.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Content != "replaced" {
		t.Fatalf("expected upserted content, got %+v", results)
	}
	if n, err := store.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count: got (%d, %v), want (1, nil)", n, err)
	}
}

func TestDeleteCV(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.IndexChunk(ctx, chunkFixture("c1", "cv-1", "a", "", []float32{1, 0, 0, 0}))
	_ = store.IndexChunk(ctx, chunkFixture("c2", "cv-2", "b", "", []float32{0, 1, 0, 0}))

	if err := store.DeleteCV(ctx, "cv-1"); err != nil {
		t.Fatalf("DeleteCV: %v", err)
	}
	if err := store.DeleteCV(ctx, "cv-unknown"); err != nil {
		t.Fatalf("DeleteCV unknown: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("after delete: count %d, want 1", n)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 5, 0, resume.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
