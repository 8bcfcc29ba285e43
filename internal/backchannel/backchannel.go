// Package backchannel selects short filler utterances ("I see", "go on")
// emitted while the substantive reply is still being prepared.
//
// Utterances come from a per-role table partitioned by tone. Selection is
// deterministic: each session keeps a round-robin counter per tone, and a
// per-session rate limit suppresses fillers that would arrive too close
// together.
package backchannel

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the selection block when the table leaves them unset.
const (
	DefaultPositiveThreshold = 0.7
	DefaultNegativeThreshold = 0.3
	DefaultMinInterval       = 2 * time.Second
)

// RoleTable holds the utterance lists for one role, split by tone.
type RoleTable struct {
	Positive []string `yaml:"generic_positive"`
	Neutral  []string `yaml:"generic_neutral"`
	Negative []string `yaml:"generic_negative"`
}

// Selection configures tone choice and rate limiting.
type Selection struct {
	// PositiveThreshold is the signal at or above which the positive tone
	// is used.
	PositiveThreshold float64 `yaml:"positive_threshold"`

	// NegativeThreshold is the signal below which the negative tone is used.
	NegativeThreshold float64 `yaml:"negative_threshold"`

	// MinIntervalMS suppresses a pick when fewer milliseconds have elapsed
	// since the session's previous emitted filler.
	MinIntervalMS int `yaml:"min_interval_ms"`
}

// Table is the full backchannel configuration document.
type Table struct {
	Roles     map[string]RoleTable `yaml:"roles"`
	Common    RoleTable            `yaml:"common"`
	Selection Selection            `yaml:"selection"`
}

// DefaultTable returns the built-in Russian filler table used when no
// configuration file is provided.
func DefaultTable() Table {
	return Table{
		Common: RoleTable{
			Positive: []string{"Отлично!", "Здорово.", "Очень интересно."},
			Neutral:  []string{"Понимаю.", "Так.", "Угу.", "Продолжайте."},
			Negative: []string{"Понятно...", "Хм.", "Ясно."},
		},
		Selection: Selection{
			PositiveThreshold: DefaultPositiveThreshold,
			NegativeThreshold: DefaultNegativeThreshold,
			MinIntervalMS:     int(DefaultMinInterval / time.Millisecond),
		},
	}
}

// LoadTable reads a backchannel table from the YAML file at path. A missing
// file yields [DefaultTable].
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultTable(), nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("backchannel: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadTableFromReader(f)
	if err != nil {
		return Table{}, fmt.Errorf("backchannel: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadTableFromReader decodes a table from r, filling selection defaults.
func LoadTableFromReader(r io.Reader) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("backchannel: decode yaml: %w", err)
	}
	if t.Selection.PositiveThreshold <= 0 {
		t.Selection.PositiveThreshold = DefaultPositiveThreshold
	}
	if t.Selection.NegativeThreshold <= 0 {
		t.Selection.NegativeThreshold = DefaultNegativeThreshold
	}
	if t.Selection.MinIntervalMS <= 0 {
		t.Selection.MinIntervalMS = int(DefaultMinInterval / time.Millisecond)
	}
	return t, nil
}

// NeutralSignal is passed to [Engine.Pick] when no score-like signal is
// available yet (e.g. only a partial transcript length is known).
const NeutralSignal = -1

// Engine picks fillers for sessions. Safe for concurrent use.
type Engine struct {
	table       Table
	minInterval time.Duration

	mu       sync.Mutex
	counters map[string]map[tone]int
	lastEmit map[string]time.Time
}

type tone int

const (
	toneNeutral tone = iota
	tonePositive
	toneNegative
)

// New builds an engine over the given table. minInterval overrides the
// table's min_interval_ms when positive.
func New(table Table, minInterval time.Duration) *Engine {
	if minInterval <= 0 {
		minInterval = time.Duration(table.Selection.MinIntervalMS) * time.Millisecond
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Engine{
		table:       table,
		minInterval: minInterval,
		counters:    make(map[string]map[tone]int),
		lastEmit:    make(map[string]time.Time),
	}
}

// Pick returns the next filler for the session, or ok=false when the session
// is rate-limited or the chosen tone has no utterances.
//
// signal is a score-like value in [0, 1]; pass [NeutralSignal] to force the
// neutral tone. role selects a role-specific table, falling back to the
// common one.
func (e *Engine) Pick(sessionID, role string, signal float64, now time.Time) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastEmit[sessionID]; ok && now.Sub(last) < e.minInterval {
		return "", false
	}

	t := toneNeutral
	switch {
	case signal < 0:
		// partial-only signal, stay neutral
	case signal >= e.table.Selection.PositiveThreshold:
		t = tonePositive
	case signal < e.table.Selection.NegativeThreshold:
		t = toneNegative
	}

	utterances := e.utterances(role, t)
	if len(utterances) == 0 {
		return "", false
	}

	counters, ok := e.counters[sessionID]
	if !ok {
		counters = make(map[tone]int)
		e.counters[sessionID] = counters
	}
	pick := utterances[counters[t]%len(utterances)]
	counters[t]++
	e.lastEmit[sessionID] = now
	return pick, true
}

// Forget drops the session's counters and rate-limit state.
func (e *Engine) Forget(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.counters, sessionID)
	delete(e.lastEmit, sessionID)
}

// utterances resolves the list for role and tone, falling back to the
// common table when the role has none for that tone.
func (e *Engine) utterances(role string, t tone) []string {
	pickFrom := func(rt RoleTable) []string {
		switch t {
		case tonePositive:
			return rt.Positive
		case toneNegative:
			return rt.Negative
		default:
			return rt.Neutral
		}
	}
	if rt, ok := e.table.Roles[role]; ok {
		if list := pickFrom(rt); len(list) > 0 {
			return list
		}
	}
	return pickFrom(e.table.Common)
}
