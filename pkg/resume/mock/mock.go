// Package mock provides an in-memory test double for the resume.Index
// interface.
//
// Index records every method call for assertion in tests and exposes exported
// fields that control what it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	idx := &mock.Index{SearchResults: []resume.SearchResult{{Score: 0.9}}}
//	// inject idx into the system under test …
//	if got := idx.CallCount("Search"); got != 1 {
//	    t.Errorf("expected 1 Search call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/Maratmain/ai-hr/pkg/resume"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Index is a configurable test double for [resume.Index].
// All exported *Err fields default to nil (success).
type Index struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// IndexChunkErr is returned by [Index.IndexChunk] when non-nil.
	IndexChunkErr error

	// SearchResults is returned by [Index.Search].
	// When nil, Search returns an empty non-nil slice.
	SearchResults []resume.SearchResult

	// SearchErr is returned by [Index.Search] when non-nil.
	SearchErr error

	// DeleteCVErr is returned by [Index.DeleteCV] when non-nil.
	DeleteCVErr error

	// CountResult is returned by [Index.Count].
	CountResult int

	// CountErr is returned by [Index.Count] when non-nil.
	CountErr error
}

// Ensure Index implements resume.Index at compile time.
var _ resume.Index = (*Index)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Index) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Index) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Index) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// IndexChunk implements [resume.Index].
func (m *Index) IndexChunk(_ context.Context, chunk resume.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "IndexChunk", Args: []any{chunk}})
	return m.IndexChunkErr
}

// Search implements [resume.Index].
func (m *Index) Search(_ context.Context, embedding []float32, topK int, minScore float64, filter resume.Filter) ([]resume.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{vec, topK, minScore, filter}})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResults == nil {
		return []resume.SearchResult{}, nil
	}
	out := make([]resume.SearchResult, len(m.SearchResults))
	copy(out, m.SearchResults)
	return out, nil
}

// DeleteCV implements [resume.Index].
func (m *Index) DeleteCV(_ context.Context, cvID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteCV", Args: []any{cvID}})
	return m.DeleteCVErr
}

// Count implements [resume.Index].
func (m *Index) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Count", Args: []any{}})
	return m.CountResult, m.CountErr
}
