// Package memory keeps per-participant conversation history.
//
// Only participants registered as memory-capable have history; Append and Read
// are no-ops for everyone else. The log is append-only. A participant's history
// is only ever touched by that participant's own dispatch unit, so a store-level
// lock guarding the map is the only synchronization needed.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"chorus/llm"
	"chorus/store"
)

// Exchange is one prompt and the response it produced
type Exchange struct {
	Prompt   string
	Response string
	At       time.Time
}

// Option configures a Store
type Option func(*Store)

// WithBackend persists every appended exchange to an exchange store
func WithBackend(backend store.ExchangeStore) Option {
	return func(s *Store) { s.backend = backend }
}

// WithLogger sets the logger used to report persistence failures
func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) { s.logger = logger.Named("memory") }
}

// Store holds conversation history for memory-capable participants
type Store struct {
	mu        sync.RWMutex
	enabled   map[string]int // participant -> window (0 = unlimited)
	exchanges map[string][]Exchange
	backend   store.ExchangeStore
	logger    hclog.Logger
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		enabled:   make(map[string]int),
		exchanges: make(map[string][]Exchange),
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable marks a participant as memory-capable. window limits how many of the
// most recent exchanges Read returns; zero means all.
func (s *Store) Enable(participant string, window int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[participant] = window
}

// Enabled reports whether the participant keeps history
func (s *Store) Enabled(participant string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enabled[participant]
	return ok
}

// Load restores history for the given participants from the backend
func (s *Store) Load(ctx context.Context, participants []string) error {
	if s.backend == nil {
		return nil
	}
	for _, id := range participants {
		if !s.Enabled(id) {
			continue
		}
		records, err := s.backend.GetExchanges(ctx, id)
		if err != nil {
			return fmt.Errorf("load history for %s: %w", id, err)
		}
		history := make([]Exchange, 0, len(records))
		for _, r := range records {
			history = append(history, Exchange{Prompt: r.Prompt, Response: r.Response, At: r.CreatedAt})
		}
		s.mu.Lock()
		s.exchanges[id] = history
		s.mu.Unlock()
	}
	return nil
}

// Append records an exchange for a memory-capable participant. Calls for other
// participants are ignored.
func (s *Store) Append(ctx context.Context, participant, prompt, response string) error {
	if !s.Enabled(participant) {
		return nil
	}

	ex := Exchange{Prompt: prompt, Response: response, At: time.Now()}
	s.mu.Lock()
	s.exchanges[participant] = append(s.exchanges[participant], ex)
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	err := s.backend.AppendExchange(ctx, store.Exchange{
		ParticipantID: participant,
		Prompt:        prompt,
		Response:      response,
		CreatedAt:     ex.At,
	})
	if err != nil {
		s.logger.Warn("failed to persist exchange", "participant", participant, "error", err)
		return fmt.Errorf("persist exchange for %s: %w", participant, err)
	}
	return nil
}

// Read returns a copy of the participant's history, oldest first, trimmed to
// its window. It is empty for participants without memory.
func (s *Store) Read(participant string) []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window, ok := s.enabled[participant]
	if !ok {
		return nil
	}
	history := s.exchanges[participant]
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	out := make([]Exchange, len(history))
	copy(out, history)
	return out
}

// Messages converts exchanges into alternating user/assistant turns
func Messages(history []Exchange) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)*2)
	for _, ex := range history {
		msgs = append(msgs,
			llm.NewTextMessage(llm.RoleUser, ex.Prompt),
			llm.NewTextMessage(llm.RoleAssistant, ex.Response),
		)
	}
	return msgs
}
