package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Manager and TurnHandle methods.
var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrEnded is returned when an operation targets an ended session.
	ErrEnded = errors.New("session has ended")

	// ErrSuperseded is returned when a newer turn replaced this one.
	ErrSuperseded = errors.New("turn superseded by a newer transcript")
)

// DefaultIdleTimeout evicts sessions with no turn activity for this long.
const DefaultIdleTimeout = 30 * time.Minute

// subscriberBuffer is the event channel capacity per subscriber. A consumer
// that falls further behind starts losing events rather than blocking turns.
const subscriberBuffer = 16

// Manager owns all live sessions. Safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*liveSession
	idleTimeout time.Duration
	logger      *slog.Logger
	onBegin     func(id string)
	onEnd       func(id, reason string)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// liveSession is the mutable server-side record behind one session id.
type liveSession struct {
	mu      sync.Mutex
	state   State
	subs    map[int]chan Event
	nextSub int

	// turnCancel aborts the in-flight turn when a newer one arrives.
	turnCancel context.CancelFunc
	// turnCtx is the context of the in-flight turn, nil when idle.
	turnCtx context.Context
}

// config holds optional configuration collected from functional options.
type config struct {
	idleTimeout time.Duration
	logger      *slog.Logger
	onBegin     func(id string)
	onEnd       func(id, reason string)
}

// Option is a functional option for Manager.
type Option func(*config)

// WithIdleTimeout overrides how long a session may stay idle before eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithOnBegin registers fn to run after every session start. Used to drive
// the active-session gauge.
func WithOnBegin(fn func(id string)) Option {
	return func(c *config) { c.onBegin = fn }
}

// WithOnEnd registers fn to run after every session end, whatever the
// trigger: an explicit end, idle eviction, or manager shutdown. Used to
// release per-session state held elsewhere and to decrement the
// active-session gauge.
func WithOnEnd(fn func(id, reason string)) Option {
	return func(c *config) { c.onEnd = fn }
}

// NewManager creates a Manager and starts its idle-eviction loop.
// Call [Manager.Close] to stop background work.
func NewManager(opts ...Option) *Manager {
	cfg := &config{idleTimeout: DefaultIdleTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	m := &Manager{
		sessions:    make(map[string]*liveSession),
		idleTimeout: cfg.idleTimeout,
		logger:      cfg.logger,
		onBegin:     cfg.onBegin,
		onEnd:       cfg.onEnd,
		stopCh:      make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Close stops the eviction loop and ends every remaining session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_, _ = m.End(id)
	}
}

// BeginParams configures a new session.
type BeginParams struct {
	ScenarioID  string
	StartNodeID string
	RoleID      string
	CVID        string
}

// Begin creates a new session positioned at the scenario's start node and
// returns its initial state snapshot.
func (m *Manager) Begin(p BeginParams) (State, error) {
	if p.ScenarioID == "" || p.StartNodeID == "" {
		return State{}, fmt.Errorf("session: begin needs a scenario and a start node")
	}

	now := time.Now()
	st := State{
		ID:            uuid.NewString(),
		ScenarioID:    p.ScenarioID,
		RoleID:        p.RoleID,
		CVID:          p.CVID,
		CurrentNodeID: p.StartNodeID,
		BlockScores:   map[string]float64{},
		RedFlags:      []string{},
		StartedAt:     now,
		LastActivity:  now,
	}

	ls := &liveSession{
		state: st,
		subs:  make(map[int]chan Event),
	}

	m.mu.Lock()
	m.sessions[st.ID] = ls
	m.mu.Unlock()

	m.logger.Info("session started",
		"session_id", st.ID,
		"scenario_id", p.ScenarioID,
		"role_id", p.RoleID)
	if m.onBegin != nil {
		m.onBegin(st.ID)
	}

	return st.clone(), nil
}

// Get returns a snapshot of the session state.
func (m *Manager) Get(id string) (State, error) {
	ls, err := m.lookup(id)
	if err != nil {
		return State{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state.clone(), nil
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// End terminates the session, notifies subscribers, and removes it.
// The final state snapshot is returned for the closing report.
func (m *Manager) End(id string) (State, error) {
	return m.end(id, "ended")
}

func (m *Manager) end(id, reason string) (State, error) {
	m.mu.Lock()
	ls, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return State{}, fmt.Errorf("session: end %q: %w", id, ErrNotFound)
	}

	ls.mu.Lock()
	if ls.turnCancel != nil {
		ls.turnCancel()
		ls.turnCancel = nil
		ls.turnCtx = nil
	}
	ls.state.Ended = true
	final := ls.state.clone()
	ls.publishLocked(Event{Type: EventSessionEnded, Reason: reason})
	for _, ch := range ls.subs {
		close(ch)
	}
	ls.subs = map[int]chan Event{}
	ls.mu.Unlock()

	m.logger.Info("session ended", "session_id", id, "reason", reason, "turns", final.TurnSeq)
	if m.onEnd != nil {
		m.onEnd(id, reason)
	}
	return final, nil
}

// Subscribe attaches an event channel to the session. The returned cancel
// function detaches it; the channel is closed when the session ends.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	ls, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Ended {
		return nil, nil, fmt.Errorf("session: subscribe %q: %w", id, ErrEnded)
	}
	ch := make(chan Event, subscriberBuffer)
	key := ls.nextSub
	ls.nextSub++
	ls.subs[key] = ch

	cancel := func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		if _, ok := ls.subs[key]; ok {
			delete(ls.subs, key)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// StartTurn claims the session's turn slot for a new transcript. Any turn
// still in flight is cancelled first (newest wins). The returned handle
// carries the turn context and sequence number.
func (m *Manager) StartTurn(ctx context.Context, id string) (*TurnHandle, error) {
	ls, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.state.Ended {
		return nil, fmt.Errorf("session: start turn %q: %w", id, ErrEnded)
	}

	if ls.turnCancel != nil {
		ls.turnCancel()
		m.logger.Debug("in-flight turn superseded", "session_id", id, "turn_seq", ls.state.TurnSeq)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	ls.turnCancel = cancel
	ls.turnCtx = turnCtx
	ls.state.TurnSeq++
	ls.state.LastActivity = time.Now()

	return &TurnHandle{
		Ctx:     turnCtx,
		Seq:     ls.state.TurnSeq,
		session: ls,
		manager: m,
	}, nil
}

// lookup returns the live session for id.
func (m *Manager) lookup(id string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return ls, nil
}

// evictLoop ends sessions whose last activity is older than the idle timeout.
func (m *Manager) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

// evictIdle ends every session idle since before now-idleTimeout.
func (m *Manager) evictIdle(now time.Time) {
	m.mu.Lock()
	var expired []string
	for id, ls := range m.sessions {
		ls.mu.Lock()
		idle := now.Sub(ls.state.LastActivity) > m.idleTimeout
		ls.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Info("evicting idle session", "session_id", id)
		_, _ = m.end(id, "idle_timeout")
	}
}

// publishLocked fans an event out to all subscribers. Callers hold ls.mu, so
// events keep their emission order for every subscriber. Slow subscribers
// lose events instead of blocking the turn pipeline.
func (ls *liveSession) publishLocked(ev Event) {
	for _, ch := range ls.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// TurnHandle is the single-writer token for one turn. All mutation of the
// session during the turn goes through the handle, and every method fails
// with [ErrSuperseded] once a newer turn has claimed the slot.
type TurnHandle struct {
	// Ctx is cancelled when the turn is superseded or the session ends.
	Ctx context.Context

	// Seq is this turn's sequence number, unique and increasing per session.
	Seq int

	session *liveSession
	manager *Manager
}

// State returns a snapshot of the session state as of now.
func (h *TurnHandle) State() State {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	return h.session.state.clone()
}

// PublishBackchannel emits the early acknowledgement event for this turn.
// Superseded turns are silently dropped.
func (h *TurnHandle) PublishBackchannel(text string) {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	if h.Ctx.Err() != nil {
		return
	}
	h.session.publishLocked(Event{
		Type:    EventBackchannelReady,
		TurnSeq: h.Seq,
		Text:    text,
	})
}

// Commit finalizes the turn: under the session lock it re-checks that the
// turn was not superseded, applies mutate to the state, appends the turn
// record, and emits the completion event. A cancelled turn commits nothing.
func (h *TurnHandle) Commit(record TurnRecord, mutate func(*State)) error {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()

	if h.Ctx.Err() != nil {
		return fmt.Errorf("session: commit turn %d: %w", h.Seq, ErrSuperseded)
	}
	if h.session.state.Ended {
		return fmt.Errorf("session: commit turn %d: %w", h.Seq, ErrEnded)
	}

	if mutate != nil {
		mutate(&h.session.state)
	}
	record.SessionID = h.session.state.ID
	record.TurnSeq = h.Seq
	h.session.state.History = append(h.session.state.History, record)
	h.session.state.LastActivity = time.Now()

	if h.session.turnCtx == h.Ctx {
		// Release the turn slot. Cancelling after commit is safe and frees
		// the context's resources.
		cancel := h.session.turnCancel
		h.session.turnCancel = nil
		h.session.turnCtx = nil
		defer cancel()
	}

	h.session.publishLocked(Event{
		Type:    EventTurnComplete,
		TurnSeq: h.Seq,
		Turn:    &record,
	})
	return nil
}
