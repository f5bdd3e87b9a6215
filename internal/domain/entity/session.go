package entity

import (
	"errors"
	"fmt"
	"time"
)

type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
	StateExhausted RunState = "exhausted"
)

func (s RunState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateExhausted
}

var (
	ErrSessionSealed  = errors.New("session is sealed")
	ErrActionBudget   = errors.New("action budget exhausted")
	ErrNotTerminal    = errors.New("state is not terminal")
	ErrInvalidRequest = errors.New("invalid run request")
)

type ErrorKind string

const (
	ErrorSnapshotDegraded    ErrorKind = "snapshot_degraded"
	ErrorProposalParse       ErrorKind = "proposal_parse_error"
	ErrorDecisionUnavailable ErrorKind = "decision_unavailable"
	ErrorAction              ErrorKind = "action_failed"
	ErrorSession             ErrorKind = "session_failure"
	ErrorCancelled           ErrorKind = "cancelled"
)

type ErrorRecord struct {
	Tick    int
	Kind    ErrorKind
	Message string
}

type SelectorStrategy struct {
	Kind     ActionKind
	Selector string
	// Rank is the 1-based position in the proposal's targets, or 0 for a
	// selector derived from the target description.
	Rank int
}

// Session is the mutable aggregate of one navigation run. Only the navigator
// and the report package touch it; once sealed it is read-only.
type Session struct {
	RunID      string
	URL        string
	Goal       string
	MaxActions int
	StartedAt  time.Time
	EndedAt    time.Time

	state      RunState
	count      int
	actions    []Outcome
	errors     []ErrorRecord
	extracted  map[string]string
	path       []string
	strategies []SelectorStrategy
	finalURL   string
}

func NewSession(runID, url, goal string, maxActions int) (*Session, error) {
	if url == "" || goal == "" {
		return nil, fmt.Errorf("%w: url and goal are required", ErrInvalidRequest)
	}
	if maxActions < 1 {
		return nil, fmt.Errorf("%w: max actions must be positive, got %d", ErrInvalidRequest, maxActions)
	}
	return &Session{
		RunID:      runID,
		URL:        url,
		Goal:       goal,
		MaxActions: maxActions,
		state:      StateIdle,
		extracted:  make(map[string]string),
	}, nil
}

func (s *Session) State() RunState { return s.state }
func (s *Session) Count() int      { return s.count }
func (s *Session) Sealed() bool    { return s.state.Terminal() }
func (s *Session) FinalURL() string {
	return s.finalURL
}

func (s *Session) Start(now time.Time) error {
	if s.state != StateIdle {
		return fmt.Errorf("start from %s: %w", s.state, ErrSessionSealed)
	}
	s.state = StateRunning
	s.StartedAt = now
	return nil
}

// Record appends an outcome and consumes one unit of the action budget.
func (s *Session) Record(o Outcome) error {
	if s.Sealed() {
		return ErrSessionSealed
	}
	if s.count >= s.MaxActions {
		return ErrActionBudget
	}
	o.Tick = s.count + 1
	if len(o.Extracted) > 0 {
		cp := make(map[string]string, len(o.Extracted))
		for k, v := range o.Extracted {
			cp[k] = v
			s.extracted[k] = v
		}
		o.Extracted = cp
	}
	if o.Success && o.SelectorUsed != "" {
		rank := 0
		for i, t := range o.Action.Targets {
			if t == o.SelectorUsed {
				rank = i + 1
				break
			}
		}
		s.strategies = append(s.strategies, SelectorStrategy{Kind: o.Action.Kind, Selector: o.SelectorUsed, Rank: rank})
	}
	s.actions = append(s.actions, o)
	s.count++
	return nil
}

func (s *Session) Budget() int {
	return s.MaxActions - s.count
}

func (s *Session) AddError(kind ErrorKind, msg string) {
	if s.Sealed() {
		return
	}
	s.errors = append(s.errors, ErrorRecord{Tick: s.count + 1, Kind: kind, Message: msg})
}

// Visit appends url to the navigation path when it differs from the last entry.
func (s *Session) Visit(url string) {
	if s.Sealed() || url == "" {
		return
	}
	if n := len(s.path); n > 0 && s.path[n-1] == url {
		return
	}
	s.path = append(s.path, url)
}

func (s *Session) SetExtracted(key, value string) {
	if s.Sealed() {
		return
	}
	s.extracted[key] = value
}

// Seal moves the session into a terminal state. It can only happen once.
func (s *Session) Seal(state RunState, finalURL string, now time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("seal with %s: %w", state, ErrNotTerminal)
	}
	if s.Sealed() {
		return ErrSessionSealed
	}
	s.state = state
	s.finalURL = finalURL
	s.EndedAt = now
	return nil
}

func (s *Session) Actions() []Outcome {
	return append([]Outcome(nil), s.actions...)
}

func (s *Session) Errors() []ErrorRecord {
	return append([]ErrorRecord(nil), s.errors...)
}

func (s *Session) Path() []string {
	return append([]string(nil), s.path...)
}

func (s *Session) Strategies() []SelectorStrategy {
	return append([]SelectorStrategy(nil), s.strategies...)
}

func (s *Session) Extracted() map[string]string {
	out := make(map[string]string, len(s.extracted))
	for k, v := range s.extracted {
		out[k] = v
	}
	return out
}

// History returns the compact records of the last n log entries.
func (s *Session) History(n int) []HistoryEntry {
	start := 0
	if n > 0 && len(s.actions) > n {
		start = len(s.actions) - n
	}
	out := make([]HistoryEntry, 0, len(s.actions)-start)
	for _, o := range s.actions[start:] {
		out = append(out, o.History())
	}
	return out
}
