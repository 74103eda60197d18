package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Bundle holds all stores for persisting collaboration state
type Bundle struct {
	Sessions  SessionStore
	Exchanges ExchangeStore
	Ledger    LedgerStore
	Events    EventStore
	closer    func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// SessionStore records finished collaboration sessions and their outcomes
type SessionStore interface {
	SaveSession(ctx context.Context, rec SessionRecord, outcomes []OutcomeRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, []OutcomeRecord, error)
	ListSessions(ctx context.Context, limit, offset int) ([]SessionRecord, error)
}

// SessionRecord describes one collaboration session
type SessionRecord struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	State        string    `json:"state"`
	Result       string    `json:"result,omitempty"`
	Consolidated bool      `json:"consolidated"`
	RolesJSON    string    `json:"rolesJson,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// OutcomeRecord is one participant's result within a session
type OutcomeRecord struct {
	SessionID     string  `json:"sessionId"`
	ParticipantID string  `json:"participantId"`
	Role          string  `json:"role"`
	Success       bool    `json:"success"`
	Content       string  `json:"content,omitempty"`
	ErrorKind     string  `json:"errorKind,omitempty"`
	Error         string  `json:"error,omitempty"`
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	Cost          float64 `json:"cost"`
	Step          int64   `json:"step"`
	DurationMS    int64   `json:"durationMs"`
}

// ExchangeStore is the append-only log of per-participant conversation exchanges
type ExchangeStore interface {
	AppendExchange(ctx context.Context, ex Exchange) error
	GetExchanges(ctx context.Context, participantID string) ([]Exchange, error)
}

// Exchange is one (prompt, response) pair of a participant's conversation
type Exchange struct {
	ParticipantID string    `json:"participantId"`
	Prompt        string    `json:"prompt"`
	Response      string    `json:"response"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LedgerStore persists ledger balances and counters between runs
type LedgerStore interface {
	SaveLedger(ctx context.Context, entries []LedgerRecord) error
	LoadLedger(ctx context.Context) ([]LedgerRecord, error)
}

// LedgerRecord is the persisted form of one participant's ledger entry
type LedgerRecord struct {
	ParticipantID string    `json:"participantId"`
	InputTokens   int64     `json:"inputTokens"`
	OutputTokens  int64     `json:"outputTokens"`
	Cost          float64   `json:"cost"`
	Calls         int64     `json:"calls"`
	Failures      int64     `json:"failures"`
	Balance       float64   `json:"balance"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EventStore is the append-only log of session events
type EventStore interface {
	StoreEvent(ctx context.Context, event EventRecord) error
	// ListEvents returns a session's events ordered by step
	ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]EventRecord, error)
}

// EventRecord is one persisted session event
type EventRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Step        int64     `json:"step"`
	Participant string    `json:"participant,omitempty"`
	EventType   string    `json:"eventType"`
	DataJSON    string    `json:"data"`
	CreatedAt   time.Time `json:"createdAt"`
}
