package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"chorus/ledger"
	"chorus/memory"
	"chorus/store"
	"chorus/streamers"
)

// DefaultMinQueryLength is the shortest query, in characters, a session accepts
const DefaultMinQueryLength = 10

// Options wires a Controller
type Options struct {
	Roster      *Roster
	Coordinator string // participant id
	Supervisor  string // participant id
	Ledger      *ledger.Ledger
	Memory      *memory.Store
	Adapter     *Adapter // defaults to NewAdapter(Ledger)

	MinQueryLength     int
	ParticipantTimeout time.Duration

	// Optional persistence of finished sessions and ledger balances
	Sessions store.SessionStore
	Ledgers  store.LedgerStore
	Events   store.EventStore

	Logger hclog.Logger
}

// Controller runs collaboration sessions
type Controller struct {
	roster       *Roster
	ledger       *ledger.Ledger
	adapter      *Adapter
	memory       *memory.Store
	coordinator  *Coordinator
	dispatcher   *Dispatcher
	consolidator *Consolidator
	sessions     store.SessionStore
	ledgers      store.LedgerStore
	events       store.EventStore
	minQuery     int
	logger       hclog.Logger
}

// NewController validates opts and builds the session pipeline
func NewController(opts Options) (*Controller, error) {
	if opts.Roster == nil || len(opts.Roster.Participants) == 0 {
		return nil, fmt.Errorf("at least one participant is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("a ledger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	coord, ok := opts.Roster.Get(opts.Coordinator)
	if !ok {
		return nil, fmt.Errorf("coordinator '%s' is not a participant", opts.Coordinator)
	}
	sup, ok := opts.Roster.Get(opts.Supervisor)
	if !ok {
		return nil, fmt.Errorf("supervisor '%s' is not a participant", opts.Supervisor)
	}

	adapter := opts.Adapter
	if adapter == nil {
		adapter = NewAdapter(opts.Ledger, WithAdapterLogger(logger))
	}
	mem := opts.Memory
	if mem == nil {
		mem = memory.New(memory.WithLogger(logger))
	}
	for _, p := range opts.Roster.Participants {
		if p.SupportsMemory && !mem.Enabled(p.ID) {
			mem.Enable(p.ID, 0)
		}
	}

	minQuery := opts.MinQueryLength
	if minQuery <= 0 {
		minQuery = DefaultMinQueryLength
	}

	return &Controller{
		roster:       opts.Roster,
		ledger:       opts.Ledger,
		adapter:      adapter,
		memory:       mem,
		coordinator:  NewCoordinator(adapter, coord, opts.ParticipantTimeout, logger),
		dispatcher:   NewDispatcher(adapter, mem, opts.Roster.Participants, opts.ParticipantTimeout, logger),
		consolidator: NewConsolidator(adapter, sup, opts.ParticipantTimeout, logger),
		sessions:     opts.Sessions,
		ledgers:      opts.Ledgers,
		events:       opts.Events,
		minQuery:     minQuery,
		logger:       logger.Named("controller"),
	}, nil
}

// Adapter returns the adapter used for every participant call
func (c *Controller) Adapter() *Adapter {
	return c.adapter
}

// Memory returns the conversation memory shared by every session
func (c *Controller) Memory() *memory.Store {
	return c.memory
}

// Roster returns the controller's participants
func (c *Controller) Roster() *Roster {
	return c.roster
}

// RunOption configures a single Run
type RunOption func(*run)

// WithHandler streams session events to h
func WithHandler(h streamers.SessionHandler) RunOption {
	return func(r *run) { r.handler = h }
}

// run is the per-session execution state
type run struct {
	c       *Controller
	s       *Session
	handler streamers.SessionHandler
	logger  hclog.Logger
}

// Run executes one session for query. The returned session is always non-nil
// and reflects the terminal state; the error is nil only for Complete.
func (c *Controller) Run(ctx context.Context, query string, opts ...RunOption) (*Session, error) {
	r := &run{c: c, s: newSession(query), handler: streamers.NopHandler{}}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = c.logger.With("session", r.s.ID)
	if c.events != nil {
		r.handler = streamers.NewStoringSessionHandler(r.handler, c.events, r.logger)
	}

	err := r.execute(ctx)
	r.finish()
	c.persist(ctx, r.s)
	return r.s, err
}

func (r *run) meta(participant string) streamers.Meta {
	return streamers.Meta{
		SessionID:   r.s.ID,
		Step:        r.s.nextStep(),
		Participant: participant,
		At:          time.Now(),
	}
}

func (r *run) transition(to State) {
	from, err := r.s.transition(to)
	if err != nil {
		r.logger.Error("state machine violation", "error", err)
		return
	}
	r.logger.Debug("state change", "from", from, "to", to)
	r.handler.StateChanged(r.meta(""), string(from), string(to))
}

func (r *run) execute(ctx context.Context) error {
	s := r.s
	ids := r.c.roster.IDs()
	r.handler.SessionStarted(r.meta(""), s.Query, ids)

	r.transition(StateValidating)
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(s.Query)); n < r.c.minQuery {
		return r.fail(&Error{Kind: KindValidation, Message: fmt.Sprintf("query must be at least %d characters, got %d", r.c.minQuery, n)})
	}

	r.transition(StateAnalyzing)
	roles := r.c.coordinator.AssignRoles(ctx, s.Query, r.c.roster.Participants)
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	s.Roles = &roles
	r.handler.RolesAssigned(r.meta(r.c.coordinator.Participant().ID), roles.QueryType, roleInfos(roles), roles.Fallback)

	r.transition(StateDispatching)
	outcomes := r.c.dispatcher.RunRound(ctx, roles, s.Query, r)
	s.mu.Lock()
	s.Outcomes = outcomes
	s.mu.Unlock()
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}

	r.transition(StateCollecting)
	successes := s.SuccessCount()
	switch {
	case successes == 0:
		errs := make(map[string]error, len(outcomes))
		for _, o := range outcomes {
			if o.Err != nil {
				errs[o.ParticipantID] = o.Err
			}
		}
		return r.fail(&AllProvidersFailedError{Errors: errs})

	case successes == 1:
		for _, o := range outcomes {
			if o.Success {
				s.Result = o.Content
			}
		}
		return r.complete()
	}

	r.transition(StateConsolidating)
	r.handler.ConsolidationStarted(r.meta(r.c.consolidator.Supervisor().ID), successes)
	result, err := r.c.consolidator.Consolidate(ctx, s.Query, outcomes)
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	if err != nil {
		r.logger.Warn("consolidation failed, returning individual contributions", "error", err)
		r.handler.ConsolidationFailed(r.meta(r.c.consolidator.Supervisor().ID), err)
		s.ConsolidationErr = err
		s.Result = DegradedResult(outcomes)
	} else {
		s.Result = result
		s.Consolidated = true
	}
	return r.complete()
}

// UnitStarted implements RoundObserver
func (r *run) UnitStarted(p *Participant, role Role) {
	r.handler.ParticipantStarted(r.meta(p.ID), role.Title)
}

// UnitFinished implements RoundObserver
func (r *run) UnitFinished(o *Outcome) {
	meta := r.meta(o.ParticipantID)
	o.Step = meta.Step
	if o.Success {
		r.handler.ParticipantCompleted(meta, o.Role, o.Content, streamers.UsageInfo{
			InputTokens:  o.Usage.InputTokens,
			OutputTokens: o.Usage.OutputTokens,
			Cost:         o.Usage.Cost,
			Balance:      o.Balance,
		})
		return
	}
	var err error
	if o.Err != nil {
		err = o.Err
	}
	r.handler.ParticipantFailed(meta, o.Role, string(o.ErrorKind), err)
}

func (r *run) complete() error {
	r.transition(StateComplete)
	r.handler.SessionCompleted(r.meta(""), r.s.Result, r.s.Consolidated)
	r.logger.Info("session complete", "successes", r.s.SuccessCount(), "consolidated", r.s.Consolidated)
	return nil
}

func (r *run) fail(err error) error {
	r.s.Err = err
	r.transition(StateFailed)
	r.handler.SessionFailed(r.meta(""), string(KindOf(err)), err)
	r.logger.Warn("session failed", "error", err)
	return err
}

func (r *run) cancel(ctx context.Context) error {
	err := &Error{Kind: KindCancelled, Message: "session cancelled", Err: ctx.Err()}
	r.s.Err = err
	r.transition(StateCancelled)
	r.handler.SessionCancelled(r.meta(""), len(r.s.Outcomes))
	r.logger.Info("session cancelled", "recorded_outcomes", len(r.s.Outcomes))
	return err
}

func (r *run) finish() {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.Metrics = Metrics{
		Elapsed:           time.Since(r.s.StartedAt),
		SuccessCount:      countSuccesses(r.s.Outcomes),
		TotalParticipants: len(r.c.roster.Participants),
	}
}

func countSuccesses(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

func roleInfos(ra RoleAssignment) map[string]streamers.RoleInfo {
	out := make(map[string]streamers.RoleInfo, len(ra.Roles))
	for id, role := range ra.Roles {
		out[id] = streamers.RoleInfo{Role: role.Title, Instruction: role.Instruction}
	}
	return out
}

// persist writes the finished session and the ledger snapshot. Persistence
// failures are logged and never change the session result.
func (c *Controller) persist(ctx context.Context, s *Session) {
	ctx = context.WithoutCancel(ctx)

	if c.sessions != nil {
		rec, outcomes := SessionRecord(s)
		if err := c.sessions.SaveSession(ctx, rec, outcomes); err != nil {
			c.logger.Error("failed to persist session", "session", s.ID, "error", err)
		}
	}
	if c.ledgers != nil {
		if err := c.ledgers.SaveLedger(ctx, LedgerRecords(c.ledger.Snapshot())); err != nil {
			c.logger.Error("failed to persist ledger", "error", err)
		}
	}
}

// SessionRecord converts a session to its persisted form
func SessionRecord(s *Session) (store.SessionRecord, []store.OutcomeRecord) {
	rec := store.SessionRecord{
		ID:           s.ID,
		Query:        s.Query,
		State:        string(s.State),
		Result:       s.Result,
		Consolidated: s.Consolidated,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.StartedAt.Add(s.Metrics.Elapsed),
	}
	if s.Roles != nil {
		if data, err := json.Marshal(s.Roles); err == nil {
			rec.RolesJSON = string(data)
		}
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}

	outcomes := make([]store.OutcomeRecord, len(s.Outcomes))
	for i, o := range s.Outcomes {
		outcomes[i] = store.OutcomeRecord{
			SessionID:     s.ID,
			ParticipantID: o.ParticipantID,
			Role:          o.Role,
			Success:       o.Success,
			Content:       o.Content,
			ErrorKind:     string(o.ErrorKind),
			Error:         o.Error,
			InputTokens:   o.Usage.InputTokens,
			OutputTokens:  o.Usage.OutputTokens,
			Cost:          o.Usage.Cost,
			Step:          o.Step,
			DurationMS:    o.Duration.Milliseconds(),
		}
	}
	return rec, outcomes
}

// LedgerRecords converts ledger entries to their persisted form
func LedgerRecords(entries []ledger.Entry) []store.LedgerRecord {
	records := make([]store.LedgerRecord, len(entries))
	for i, e := range entries {
		records[i] = store.LedgerRecord{
			ParticipantID: e.ParticipantID,
			InputTokens:   e.InputTokens,
			OutputTokens:  e.OutputTokens,
			Cost:          e.Cost,
			Calls:         e.Calls,
			Failures:      e.Failures,
			Balance:       e.Balance,
		}
	}
	return records
}

// LedgerEntries converts persisted records back to ledger entries
func LedgerEntries(records []store.LedgerRecord) []ledger.Entry {
	entries := make([]ledger.Entry, len(records))
	for i, r := range records {
		entries[i] = ledger.Entry{
			ParticipantID: r.ParticipantID,
			InputTokens:   r.InputTokens,
			OutputTokens:  r.OutputTokens,
			Cost:          r.Cost,
			Calls:         r.Calls,
			Failures:      r.Failures,
			Balance:       r.Balance,
		}
	}
	return entries
}
