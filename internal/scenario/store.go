package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned by [Store.GetStrict] and [Store.NodeOf] when the
// requested scenario or node does not exist.
var ErrNotFound = errors.New("scenario: not found")

// Store holds all loaded scenarios and persists them as one JSON file per
// scenario under its directory. Reads are lock-free snapshots; writes
// serialize on a single mutex and exchange the snapshot atomically.
type Store struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex // guards writers only
	snap atomic.Pointer[map[string]*Scenario]
}

// StoreOption customises a [Store].
type StoreOption func(*Store)

// WithLogger sets the logger used for load warnings. Defaults to slog.Default.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore opens the scenario directory at dir, creating it if needed, and
// loads every *.json file found there. Files that fail validation are skipped
// with a warning so one corrupt scenario cannot take down the process.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scenario: create dir %q: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %q: %w", dir, err)
	}

	snap := make(map[string]*Scenario)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable scenario file", "path", path, "error", err)
			continue
		}
		sc, err := Parse(body)
		if err != nil {
			s.logger.Warn("skipping invalid scenario file", "path", path, "error", err)
			continue
		}
		snap[sc.ID] = sc
	}
	s.snap.Store(&snap)
	s.logger.Info("scenario store ready", "dir", dir, "scenarios", len(snap))
	return s, nil
}

// Parse decodes and validates a scenario from its JSON representation.
func Parse(body []byte) (*Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(body, &sc); err != nil {
		return nil, fmt.Errorf("scenario: decode json: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario: validate %q: %w", sc.ID, err)
	}
	return &sc, nil
}

// Load validates body and, on success, persists it to disk and makes it
// visible to readers. An existing scenario with the same id is replaced.
func (s *Store) Load(body []byte) (*Scenario, error) {
	sc, err := Parse(body)
	if err != nil {
		return nil, err
	}
	if err := s.Put(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Put persists a validated scenario and swaps it into the live snapshot.
// The file write is atomic: write to a temp file in the same directory, then
// rename over the target.
func (s *Store) Put(sc *Scenario) error {
	if sc.byID == nil {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("scenario: validate %q: %w", sc.ID, err)
		}
	}

	body, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("scenario: encode %q: %w", sc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, sc.ID+".json")
	tmp, err := os.CreateTemp(s.dir, sc.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("scenario: create temp for %q: %w", sc.ID, err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("scenario: write temp for %q: %w", sc.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("scenario: close temp for %q: %w", sc.ID, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("scenario: rename %q into place: %w", sc.ID, err)
	}

	old := *s.snap.Load()
	next := make(map[string]*Scenario, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[sc.ID] = sc
	s.snap.Store(&next)
	return nil
}

// Get returns the scenario with the given id. When the id is unknown it
// synthesizes a fallback chain via [Generate] using the id as a category
// name, so demo sessions never hard-fail on a missing scenario. Use
// [Store.GetStrict] to opt out of the fallback.
func (s *Store) Get(id string) *Scenario {
	if sc, ok := (*s.snap.Load())[id]; ok {
		return sc
	}
	s.logger.Warn("scenario not found, using generated fallback", "scenario_id", id)
	return Generate(id)
}

// GetStrict returns the scenario with the given id or [ErrNotFound].
func (s *Store) GetStrict(id string) (*Scenario, error) {
	if sc, ok := (*s.snap.Load())[id]; ok {
		return sc, nil
	}
	return nil, fmt.Errorf("scenario: get %q: %w", id, ErrNotFound)
}

// NodeOf returns a node from a stored scenario or [ErrNotFound] when either
// the scenario or the node is missing.
func (s *Store) NodeOf(id, nodeID string) (*Node, error) {
	sc, err := s.GetStrict(id)
	if err != nil {
		return nil, err
	}
	n := sc.Node(nodeID)
	if n == nil {
		return nil, fmt.Errorf("scenario: node %q in %q: %w", nodeID, id, ErrNotFound)
	}
	return n, nil
}

// List returns the ids of all stored scenarios, sorted.
func (s *Store) List() []string {
	snap := *s.snap.Load()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of stored scenarios.
func (s *Store) Count() int {
	return len(*s.snap.Load())
}
