// Package conversation tracks per-session dialogue state: remembered
// entities for pronoun resolution, a bounded turn history, and the pending
// clarification slot.
package conversation

import (
	"context"
	"regexp"
	"sync"
	"time"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/common/metrics"
	"enms-voice/internal/intent"
)

// PendingType is the state of the clarification slot. A session has at most
// one pending clarification; issuing a new one overwrites the old.
type PendingType string

const (
	AwaitingMachineChoice  PendingType = "awaiting_machine_choice"
	AwaitingRequiredEntity PendingType = "awaiting_required_entity"
)

// Pending holds an in-flight clarification waiting for the user's answer.
type Pending struct {
	Type          PendingType
	Options       []string // restricted candidate set for machine choice
	Field         string   // entity field name for required-entity prompts
	OriginalQuery string
	Partial       *intent.Intent
}

// Turn is one utterance and its classification outcome.
type Turn struct {
	Utterance  string
	IntentType intent.Type
	Timestamp  time.Time
}

// Context is a read-only copy of one session's dialogue state.
type Context struct {
	SessionID     string
	LastMachine   string
	LastMetric    string
	LastTimeRange *intent.TimeRange
	History       []Turn
	Pending       *Pending
}

// Session is the mutable per-session state. All methods are safe for
// concurrent use.
type Session struct {
	mu            sync.Mutex
	id            string
	lastMachine   string
	lastMetric    string
	lastTimeRange *intent.TimeRange
	history       []Turn
	pending       *Pending
	lastActive    time.Time
	historyLimit  int
}

// Manager owns the session map. Sessions expire after the idle TTL, checked
// lazily on access and by the background sweep.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	idleTTL      time.Duration
	historyLimit int
	logger       logger.Logger
	now          func() time.Time
}

func NewManager(idleTTL time.Duration, historyLimit int, log logger.Logger) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		idleTTL:      idleTTL,
		historyLimit: historyLimit,
		logger:       log.With(map[string]interface{}{"component": "conversation"}),
		now:          time.Now,
	}
}

// Session returns the live session for id, creating it if absent or
// expired. Touches the activity clock.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[id]
	if ok && now.Sub(s.touched()) > m.idleTTL {
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
		ok = false
	}
	if !ok {
		s = &Session{id: id, lastActive: now, historyLimit: m.historyLimit}
		m.sessions[id] = s
		metrics.ActiveSessions.Inc()
		m.logger.Debug("session created", map[string]interface{}{"sessionId": id})
		return s
	}
	s.touch(now)
	return s
}

// End removes a session immediately. Ending an unknown session is a no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Dec()
		m.logger.Debug("session ended", map[string]interface{}{"sessionId": id})
	}
}

// Sweep drops every session idle past the TTL and returns how many were
// removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.touched()) > m.idleTTL {
			delete(m.sessions, id)
			metrics.ActiveSessions.Dec()
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired sessions swept", map[string]interface{}{"removed": removed})
	}
	return removed
}

// StartJanitor sweeps expired sessions on the given interval until the
// context is cancelled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (s *Session) touched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = now
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := Context{
		SessionID:   s.id,
		LastMachine: s.lastMachine,
		LastMetric:  s.lastMetric,
	}
	if s.lastTimeRange != nil {
		tr := *s.lastTimeRange
		ctx.LastTimeRange = &tr
	}
	if s.pending != nil {
		p := *s.pending
		p.Options = append([]string(nil), s.pending.Options...)
		ctx.Pending = &p
	}
	ctx.History = append([]Turn(nil), s.history...)
	return ctx
}

// Remember records a completed turn, updating only the entity fields the
// intent actually carries. Absent fields keep their previous values so a
// follow-up like "what about yesterday" still knows the machine.
func (s *Session) Remember(in *intent.Intent, utterance string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Entities.Machine != "" {
		s.lastMachine = in.Entities.Machine
	}
	if in.Entities.Metric != "" {
		s.lastMetric = in.Entities.Metric
	}
	if in.Entities.TimeRange != nil {
		tr := *in.Entities.TimeRange
		s.lastTimeRange = &tr
	}

	s.history = append(s.history, Turn{
		Utterance:  utterance,
		IntentType: in.Type,
		Timestamp:  at,
	})
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	s.lastActive = at
}

// SetPending installs the clarification slot, replacing any previous one.
func (s *Session) SetPending(p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// TakePending returns and clears the pending clarification, if any.
func (s *Session) TakePending() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// Pending returns the current clarification slot without clearing it.
func (s *Session) Pending() *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

var (
	thatMachineRe = regexp.MustCompile(`(?i)\b(?:that|this|the same)\s+machine\b`)
	itsRe         = regexp.MustCompile(`(?i)\bits\b`)
	itRe          = regexp.MustCompile(`(?i)\b(?:it|that one)\b`)
	thatRe        = regexp.MustCompile(`(?i)\bthat\b`)
)

// ResolvePronouns rewrites machine pronouns in the utterance using the
// remembered machine. Longer forms run first: "that machine" and "that one"
// are replaced before the bare "that" so they never degrade into a double
// substitution. Returns the input unchanged when no machine is remembered.
func (s *Session) ResolvePronouns(utterance string) string {
	s.mu.Lock()
	machine := s.lastMachine
	s.mu.Unlock()

	if machine == "" {
		return utterance
	}

	resolved := thatMachineRe.ReplaceAllString(utterance, machine)
	resolved = itsRe.ReplaceAllString(resolved, machine+"'s")
	resolved = itRe.ReplaceAllString(resolved, machine)
	resolved = thatRe.ReplaceAllString(resolved, machine)
	return resolved
}
