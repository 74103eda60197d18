package collab

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is a collaboration session state
type State string

const (
	StateIdle          State = "idle"
	StateValidating    State = "validating"
	StateAnalyzing     State = "analyzing"
	StateDispatching   State = "dispatching"
	StateCollecting    State = "collecting"
	StateConsolidating State = "consolidating"
	StateComplete      State = "complete"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:          {StateValidating, StateCancelled},
	StateValidating:    {StateAnalyzing, StateFailed, StateCancelled},
	StateAnalyzing:     {StateDispatching, StateCancelled},
	StateDispatching:   {StateCollecting, StateCancelled},
	StateCollecting:    {StateConsolidating, StateComplete, StateFailed, StateCancelled},
	StateConsolidating: {StateComplete, StateCancelled},
}

// CanTransition reports whether from → to is a legal transition
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Metrics summarizes a finished session
type Metrics struct {
	Elapsed           time.Duration `json:"elapsedNs"`
	SuccessCount      int           `json:"successCount"`
	TotalParticipants int           `json:"totalParticipants"`
}

// Session is one collaboration run. Only the controller mutates it.
type Session struct {
	ID           string          `json:"id"`
	Query        string          `json:"query"`
	StartedAt    time.Time       `json:"startedAt"`
	State        State           `json:"state"`
	History      []State         `json:"history"`
	Roles        *RoleAssignment `json:"roles,omitempty"`
	Outcomes     []Outcome       `json:"outcomes"`
	Result       string          `json:"result,omitempty"`
	Consolidated bool            `json:"consolidated"`
	Metrics      Metrics         `json:"metrics"`

	// ConsolidationErr is set when the supervisor call failed and Result holds
	// the unsynthesized contributions instead
	ConsolidationErr error `json:"-"`
	Err              error `json:"-"`

	mu    sync.Mutex
	steps atomic.Int64
}

func newSession(query string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Query:     query,
		StartedAt: time.Now(),
		State:     StateIdle,
		History:   []State{StateIdle},
		Outcomes:  []Outcome{},
	}
}

// nextStep returns the next value of the session's event counter
func (s *Session) nextStep() int64 {
	return s.steps.Add(1)
}

// Steps returns the number of events emitted so far
func (s *Session) Steps() int64 {
	return s.steps.Load()
}

func (s *Session) transition(to State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.State
	if !CanTransition(from, to) {
		return from, fmt.Errorf("illegal session transition %s -> %s", from, to)
	}
	s.State = to
	s.History = append(s.History, to)
	return from, nil
}

// SuccessCount returns the number of successful outcomes
func (s *Session) SuccessCount() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// MarshalJSON adds error strings to the session document
func (s *Session) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID               string          `json:"id"`
		Query            string          `json:"query"`
		StartedAt        time.Time       `json:"startedAt"`
		State            State           `json:"state"`
		History          []State         `json:"history"`
		Roles            *RoleAssignment `json:"roles,omitempty"`
		Outcomes         []Outcome       `json:"outcomes"`
		Result           string          `json:"result,omitempty"`
		Consolidated     bool            `json:"consolidated"`
		Metrics          Metrics         `json:"metrics"`
		ErrorKind        Kind            `json:"errorKind,omitempty"`
		Error            string          `json:"error,omitempty"`
		ConsolidationErr string          `json:"consolidationError,omitempty"`
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := alias{
		ID:           s.ID,
		Query:        s.Query,
		StartedAt:    s.StartedAt,
		State:        s.State,
		History:      s.History,
		Roles:        s.Roles,
		Outcomes:     s.Outcomes,
		Result:       s.Result,
		Consolidated: s.Consolidated,
		Metrics:      s.Metrics,
	}
	if s.Err != nil {
		a.ErrorKind = KindOf(s.Err)
		a.Error = s.Err.Error()
	}
	if s.ConsolidationErr != nil {
		a.ConsolidationErr = s.ConsolidationErr.Error()
	}
	return json.Marshal(a)
}
