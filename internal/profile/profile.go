// Package profile holds role profiles: per-role competence block weights and
// the scoring thresholds that drive interview branching.
//
// Profiles are loaded once at startup from a YAML document and held
// read-only; block weights are normalized to sum to 1 during load.
package profile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Default thresholds applied when a profile leaves them unset.
const (
	DefaultPassThreshold         = 0.6
	DefaultDrillThreshold        = 0.7
	DefaultEquivalentThreshold   = 0.6
	DefaultCriticalFailThreshold = 0.3
)

// DefaultProfileID is the id of the built-in profile returned when a role is
// unknown.
const DefaultProfileID = "default"

// Thresholds are the score cut-offs a role applies during an interview.
type Thresholds struct {
	// Pass is the minimum block score considered acceptable in reports.
	Pass float64 `yaml:"pass_threshold"`

	// Drill is the per-answer score at or above which the interview advances
	// to the deeper question.
	Drill float64 `yaml:"drill_threshold"`

	// Equivalent is the minimum score for taking an equivalence edge.
	Equivalent float64 `yaml:"equivalent_threshold"`

	// CriticalFail is the score below which a critical block ends the
	// interview.
	CriticalFail float64 `yaml:"critical_fail_threshold"`
}

// RoleProfile describes how one role weighs competence blocks and which
// blocks are critical. Instances are immutable after load.
type RoleProfile struct {
	ID string `yaml:"-"`

	// BlockWeights maps block name to its share of the overall score.
	// Normalized so the values sum to 1.
	BlockWeights map[string]float64 `yaml:"block_weights"`

	Thresholds Thresholds `yaml:",inline"`

	// ScenarioID optionally pins the role to a specific scenario.
	ScenarioID string `yaml:"scenario_id"`

	// CriticalBlocks are blocks whose failure cannot be compensated by an
	// equivalence edge.
	CriticalBlocks []string `yaml:"critical_blocks"`

	critical map[string]bool
}

// IsCritical reports whether block is listed as critical for this role.
func (p *RoleProfile) IsCritical(block string) bool {
	return p.critical[block]
}

// normalize fills threshold defaults, scales block weights to sum to 1, and
// builds the critical-block set. The raw weight sum must be within 1 ± 0.01
// (or the weights are rescaled from whatever positive sum they have, with the
// deviation reported as an error when it exceeds the tolerance).
func (p *RoleProfile) normalize() error {
	if p.Thresholds.Pass <= 0 {
		p.Thresholds.Pass = DefaultPassThreshold
	}
	if p.Thresholds.Drill <= 0 {
		p.Thresholds.Drill = DefaultDrillThreshold
	}
	if p.Thresholds.Equivalent <= 0 {
		p.Thresholds.Equivalent = DefaultEquivalentThreshold
	}
	if p.Thresholds.CriticalFail <= 0 {
		p.Thresholds.CriticalFail = DefaultCriticalFailThreshold
	}

	var sum float64
	for block, w := range p.BlockWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("block_weights[%q] %.3f is out of range [0, 1]", block, w)
		}
		sum += w
	}
	if len(p.BlockWeights) > 0 {
		if sum <= 0 {
			return errors.New("block_weights sum to zero")
		}
		if math.Abs(sum-1) > 0.01 {
			return fmt.Errorf("block_weights sum to %.3f, want 1.0 ± 0.01", sum)
		}
		normalized := make(map[string]float64, len(p.BlockWeights))
		for block, w := range p.BlockWeights {
			normalized[block] = w / sum
		}
		p.BlockWeights = normalized
	}

	p.critical = make(map[string]bool, len(p.CriticalBlocks))
	for _, block := range p.CriticalBlocks {
		p.critical[block] = true
	}
	return nil
}

// Store holds all role profiles loaded at startup. Read-only after creation,
// so it needs no locking.
type Store struct {
	profiles map[string]*RoleProfile
	fallback *RoleProfile
}

// profilesDoc is the on-disk shape: a single `profiles:` mapping.
type profilesDoc struct {
	Profiles map[string]*RoleProfile `yaml:"profiles"`
}

// LoadStore reads the role profile YAML file at path. A missing file is not
// an error; the store then serves only the built-in default profile.
func LoadStore(path string) (*Store, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewStore(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("profile: open %q: %w", path, err)
	}
	defer f.Close()

	st, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("profile: parse %q: %w", path, err)
	}
	return st, nil
}

// LoadFromReader decodes a `profiles:` YAML document from r.
// Useful in tests where profiles are constructed from string literals.
func LoadFromReader(r io.Reader) (*Store, error) {
	var doc profilesDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("profile: decode yaml: %w", err)
	}
	return NewStore(doc.Profiles)
}

// NewStore builds a store from already-decoded profiles, normalizing each.
func NewStore(profiles map[string]*RoleProfile) (*Store, error) {
	st := &Store{profiles: make(map[string]*RoleProfile, len(profiles))}

	var errs []error
	for id, p := range profiles {
		if p == nil {
			p = &RoleProfile{}
		}
		p.ID = id
		if err := p.normalize(); err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", id, err))
			continue
		}
		st.profiles[id] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if p, ok := st.profiles[DefaultProfileID]; ok {
		st.fallback = p
	} else {
		st.fallback = &RoleProfile{ID: DefaultProfileID}
		if err := st.fallback.normalize(); err != nil {
			return nil, fmt.Errorf("profile: built-in default: %w", err)
		}
	}
	return st, nil
}

// Get returns the profile for roleID, or the default profile when the role
// is unknown.
func (s *Store) Get(roleID string) *RoleProfile {
	if p, ok := s.profiles[roleID]; ok {
		return p
	}
	return s.fallback
}

// Default returns the fallback profile.
func (s *Store) Default() *RoleProfile {
	return s.fallback
}

// List returns the ids of all explicitly loaded profiles.
func (s *Store) List() []string {
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids
}
