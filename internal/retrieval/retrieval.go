// Package retrieval glues the embeddings provider and the resume index into a
// single best-effort lookup used during turn processing.
//
// The dialogue layer treats CV context as optional garnish: a slow or broken
// retrieval path must never delay or fail the turn. Adapter therefore applies
// its own timeout and converts every failure into an empty result set,
// logging the cause instead of returning it.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/Maratmain/ai-hr/pkg/provider/embeddings"
	"github.com/Maratmain/ai-hr/pkg/resume"
)

// Default values applied when the corresponding option is not set.
const (
	DefaultTimeout = 800 * time.Millisecond
	DefaultTopK    = 3
)

// Adapter performs embedding-based retrieval of candidate CV fragments.
// It is safe for concurrent use.
type Adapter struct {
	embedder embeddings.Provider
	index    resume.Index
	timeout  time.Duration
	topK     int
	minScore float64
	logger   *slog.Logger
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout  time.Duration
	topK     int
	minScore float64
	logger   *slog.Logger
}

// Option is a functional option for Adapter.
type Option func(*config)

// WithTimeout caps the total duration of one Search call (embedding plus
// index lookup). Zero or negative keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTopK sets how many chunks one Search call returns at most.
func WithTopK(k int) Option {
	return func(c *config) {
		c.topK = k
	}
}

// WithMinScore drops results whose similarity score is below the threshold.
// Zero disables the threshold.
func WithMinScore(s float64) Option {
	return func(c *config) {
		c.minScore = s
	}
}

// WithLogger sets the logger used for reporting suppressed failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New constructs an Adapter over the given embedder and index.
func New(embedder embeddings.Provider, index resume.Index, opts ...Option) *Adapter {
	cfg := &config{
		timeout: DefaultTimeout,
		topK:    DefaultTopK,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultTimeout
	}
	if cfg.topK <= 0 {
		cfg.topK = DefaultTopK
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Adapter{
		embedder: embedder,
		index:    index,
		timeout:  cfg.timeout,
		topK:     cfg.topK,
		minScore: cfg.minScore,
		logger:   cfg.logger,
	}
}

// Search embeds query and returns the most similar CV chunks for cvID.
//
// The call is bounded by the adapter timeout regardless of the deadline on
// ctx. On any failure (embedding error, index error, timeout) an empty
// non-nil slice is returned; the turn proceeds without CV context.
func (a *Adapter) Search(ctx context.Context, cvID string, query string) []resume.SearchResult {
	if a.embedder == nil || a.index == nil || query == "" {
		return []resume.SearchResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("cv retrieval skipped: embedding failed",
			"cv_id", cvID,
			"error", err)
		return []resume.SearchResult{}
	}

	results, err := a.index.Search(ctx, vec, a.topK, a.minScore, resume.Filter{CVID: cvID})
	if err != nil {
		a.logger.Warn("cv retrieval skipped: index search failed",
			"cv_id", cvID,
			"error", err)
		return []resume.SearchResult{}
	}
	if results == nil {
		results = []resume.SearchResult{}
	}
	return results
}
