// Package ledger tracks per-participant token usage, cost and remaining balance.
//
// A Ledger is safe for concurrent use. Each participant's entry carries its own
// lock, so updates for one participant serialize while updates for different
// participants proceed independently.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownParticipant is returned for operations on a participant that has no account
var ErrUnknownParticipant = errors.New("unknown participant")

// Account opens a ledger entry for one participant
type Account struct {
	ParticipantID string
	InputRate     float64 // USD per input token
	OutputRate    float64 // USD per output token
	Balance       float64 // starting balance in USD
}

// Entry is the cumulative usage record for one participant
type Entry struct {
	ParticipantID string  `json:"participantId"`
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	Cost          float64 `json:"cost"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	Balance       float64 `json:"balance"`
}

// Delta is the effect of a single RecordUsage call
type Delta struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	NewBalance   float64
}

type account struct {
	mu         sync.Mutex
	inputRate  float64
	outputRate float64
	entry      Entry
}

// Ledger holds one account per participant
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// New creates a ledger with the given accounts
func New(accounts ...Account) *Ledger {
	l := &Ledger{accounts: make(map[string]*account, len(accounts))}
	for _, a := range accounts {
		l.Open(a)
	}
	return l
}

// Open adds an account, replacing any existing account for the participant
func (l *Ledger) Open(a Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[a.ParticipantID] = &account{
		inputRate:  a.InputRate,
		outputRate: a.OutputRate,
		entry:      Entry{ParticipantID: a.ParticipantID, Balance: a.Balance},
	}
}

func (l *Ledger) lookup(id string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}
	return acct, nil
}

// Cost prices a token count at the participant's rates without recording it
func (l *Ledger) Cost(id string, inputTokens, outputTokens int) (float64, error) {
	acct, err := l.lookup(id)
	if err != nil {
		return 0, err
	}
	return float64(inputTokens)*acct.inputRate + float64(outputTokens)*acct.outputRate, nil
}

// CheckBalance reports whether the participant has a positive balance that
// covers minimumProjectedCost. Unknown participants never pass.
func (l *Ledger) CheckBalance(id string, minimumProjectedCost float64) bool {
	acct, err := l.lookup(id)
	if err != nil {
		return false
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.entry.Balance > 0 && acct.entry.Balance >= minimumProjectedCost
}

// RecordUsage prices the tokens, decrements the balance and adds to the
// cumulative counters in one atomic step. Callers must have passed
// CheckBalance for the same participant first.
func (l *Ledger) RecordUsage(id string, inputTokens, outputTokens int) (Delta, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return Delta{}, fmt.Errorf("negative token count for %s", id)
	}
	acct, err := l.lookup(id)
	if err != nil {
		return Delta{}, err
	}

	cost := float64(inputTokens)*acct.inputRate + float64(outputTokens)*acct.outputRate

	acct.mu.Lock()
	defer acct.mu.Unlock()
	acct.entry.InputTokens += int64(inputTokens)
	acct.entry.OutputTokens += int64(outputTokens)
	acct.entry.Cost += cost
	acct.entry.Calls++
	acct.entry.Balance -= cost

	return Delta{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		NewBalance:   acct.entry.Balance,
	}, nil
}

// RecordFailure counts a failed call. Balance and token counters are untouched.
func (l *Ledger) RecordFailure(id string) error {
	acct, err := l.lookup(id)
	if err != nil {
		return err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	acct.entry.Calls++
	acct.entry.Failures++
	return nil
}

// Entry returns a copy of the participant's entry
func (l *Ledger) Entry(id string) (Entry, error) {
	acct, err := l.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.entry, nil
}

// Snapshot returns copies of all entries sorted by participant id
func (l *Ledger) Snapshot() []Entry {
	l.mu.RLock()
	accts := make([]*account, 0, len(l.accounts))
	for _, a := range l.accounts {
		accts = append(accts, a)
	}
	l.mu.RUnlock()

	entries := make([]Entry, 0, len(accts))
	for _, a := range accts {
		a.mu.Lock()
		entries = append(entries, a.entry)
		a.mu.Unlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	return entries
}

// Restore overwrites counters and balances from persisted entries. Entries for
// participants without an account are ignored; rates keep their configured values.
func (l *Ledger) Restore(entries []Entry) {
	for _, e := range entries {
		acct, err := l.lookup(e.ParticipantID)
		if err != nil {
			continue
		}
		acct.mu.Lock()
		acct.entry = e
		acct.mu.Unlock()
	}
}
