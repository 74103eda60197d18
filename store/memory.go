package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Sessions:  &MemorySessionStore{sessions: make(map[string]*memSession)},
		Exchanges: &MemoryExchangeStore{exchanges: make(map[string][]Exchange)},
		Ledger:    &MemoryLedgerStore{entries: make(map[string]LedgerRecord)},
		Events:    &MemoryEventStore{events: make(map[string][]EventRecord)},
	}
}

// =============================================================================
// MemorySessionStore
// =============================================================================

type memSession struct {
	record   SessionRecord
	outcomes []OutcomeRecord
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

func (s *MemorySessionStore) SaveSession(_ context.Context, rec SessionRecord, outcomes []OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]OutcomeRecord, len(outcomes))
	copy(copied, outcomes)
	for i := range copied {
		copied[i].SessionID = rec.ID
	}
	s.sessions[rec.ID] = &memSession{record: rec, outcomes: copied}
	return nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, id string) (*SessionRecord, []OutcomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	rec := sess.record
	outcomes := make([]OutcomeRecord, len(sess.outcomes))
	copy(outcomes, sess.outcomes)
	return &rec, outcomes, nil
}

// ListSessions returns sessions newest first
func (s *MemorySessionStore) ListSessions(_ context.Context, limit, offset int) ([]SessionRecord, error) {
	s.mu.Lock()
	records := make([]SessionRecord, 0, len(s.sessions))
	for _, sess := range s.sessions {
		records = append(records, sess.record)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if offset >= len(records) {
		return []SessionRecord{}, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// =============================================================================
// MemoryExchangeStore
// =============================================================================

type MemoryExchangeStore struct {
	mu        sync.Mutex
	exchanges map[string][]Exchange
}

func (s *MemoryExchangeStore) AppendExchange(_ context.Context, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	s.exchanges[ex.ParticipantID] = append(s.exchanges[ex.ParticipantID], ex)
	return nil
}

func (s *MemoryExchangeStore) GetExchanges(_ context.Context, participantID string) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Exchange, len(s.exchanges[participantID]))
	copy(out, s.exchanges[participantID])
	return out, nil
}

// =============================================================================
// MemoryLedgerStore
// =============================================================================

type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries map[string]LedgerRecord
}

func (s *MemoryLedgerStore) SaveLedger(_ context.Context, entries []LedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		e.UpdatedAt = now
		s.entries[e.ParticipantID] = e
	}
	return nil
}

func (s *MemoryLedgerStore) LoadLedger(_ context.Context) ([]LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LedgerRecord, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

// =============================================================================
// MemoryEventStore
// =============================================================================

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]EventRecord
}

func (s *MemoryEventStore) StoreEvent(_ context.Context, event EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *MemoryEventStore) ListEvents(_ context.Context, sessionID string, limit, offset int) ([]EventRecord, error) {
	s.mu.Lock()
	events := make([]EventRecord, len(s.events[sessionID]))
	copy(events, s.events[sessionID])
	s.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Step < events[j].Step
	})

	if offset >= len(events) {
		return []EventRecord{}, nil
	}
	events = events[offset:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}
