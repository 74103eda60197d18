package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    state TEXT NOT NULL,
    result TEXT,
    consolidated BOOLEAN DEFAULT FALSE,
    roles_json TEXT,
    error TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_outcomes (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    role TEXT,
    success BOOLEAN NOT NULL,
    content TEXT,
    error_kind TEXT,
    error TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    cost DOUBLE PRECISION DEFAULT 0,
    step BIGINT DEFAULT 0,
    duration_ms BIGINT DEFAULT 0,
    PRIMARY KEY (session_id, participant_id)
);

CREATE TABLE IF NOT EXISTS exchanges (
    id BIGSERIAL PRIMARY KEY,
    participant_id TEXT NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_exchanges_participant ON exchanges(participant_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
    participant_id TEXT PRIMARY KEY,
    input_tokens BIGINT DEFAULT 0,
    output_tokens BIGINT DEFAULT 0,
    cost DOUBLE PRECISION DEFAULT 0,
    calls BIGINT DEFAULT 0,
    failures BIGINT DEFAULT 0,
    balance DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    step BIGINT NOT NULL,
    participant TEXT,
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, step);
`

// NewPostgresBundle creates a Bundle backed by a pgx connection pool
func NewPostgresBundle(ctx context.Context, dsn string) (*Bundle, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Sessions:  &PostgresSessionStore{pool: pool},
		Exchanges: &PostgresExchangeStore{pool: pool},
		Ledger:    &PostgresLedgerStore{pool: pool},
		Events:    &PostgresEventStore{pool: pool},
		closer: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

// =============================================================================
// PostgresSessionStore
// =============================================================================

type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresSessionStore) SaveSession(ctx context.Context, rec SessionRecord, outcomes []OutcomeRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, query, state, result, consolidated, roles_json, error, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, result = EXCLUDED.result,
			   consolidated = EXCLUDED.consolidated, roles_json = EXCLUDED.roles_json,
			   error = EXCLUDED.error, finished_at = EXCLUDED.finished_at`,
			rec.ID, rec.Query, rec.State, rec.Result, rec.Consolidated, rec.RolesJSON, rec.Error, rec.StartedAt, rec.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM session_outcomes WHERE session_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("clear outcomes: %w", err)
		}

		batch := &pgx.Batch{}
		for _, o := range outcomes {
			batch.Queue(
				`INSERT INTO session_outcomes (session_id, participant_id, role, success, content, error_kind, error, input_tokens, output_tokens, cost, step, duration_ms)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				rec.ID, o.ParticipantID, o.Role, o.Success, o.Content, o.ErrorKind, o.Error,
				o.InputTokens, o.OutputTokens, o.Cost, o.Step, o.DurationMS,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save outcomes: %w", err)
		}
		return nil
	})
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, id string) (*SessionRecord, []OutcomeRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, query, state, COALESCE(result, ''), consolidated, COALESCE(roles_json, ''), COALESCE(error, ''), started_at, finished_at
		 FROM sessions WHERE id = $1`,
		id,
	)
	rec, err := scanPostgresSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, COALESCE(role, ''), success, COALESCE(content, ''), COALESCE(error_kind, ''), COALESCE(error, ''),
		        input_tokens, output_tokens, cost, step, duration_ms
		 FROM session_outcomes WHERE session_id = $1 ORDER BY step`,
		id,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		o := OutcomeRecord{SessionID: id}
		if err := rows.Scan(&o.ParticipantID, &o.Role, &o.Success, &o.Content, &o.ErrorKind, &o.Error,
			&o.InputTokens, &o.OutputTokens, &o.Cost, &o.Step, &o.DurationMS); err != nil {
			return nil, nil, err
		}
		outcomes = append(outcomes, o)
	}
	return rec, outcomes, rows.Err()
}

func (s *PostgresSessionStore) ListSessions(ctx context.Context, limit, offset int) ([]SessionRecord, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, query, state, COALESCE(result, ''), consolidated, COALESCE(roles_json, ''), COALESCE(error, ''), started_at, finished_at
		 FROM sessions ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limitArg, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		rec, err := scanPostgresSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanPostgresSession(row pgx.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var finishedAt *time.Time
	if err := row.Scan(&rec.ID, &rec.Query, &rec.State, &rec.Result, &rec.Consolidated, &rec.RolesJSON, &rec.Error, &rec.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if finishedAt != nil {
		rec.FinishedAt = *finishedAt
	}
	return &rec, nil
}

// =============================================================================
// PostgresExchangeStore
// =============================================================================

type PostgresExchangeStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresExchangeStore) AppendExchange(ctx context.Context, ex Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchanges (participant_id, prompt, response, created_at) VALUES ($1, $2, $3, $4)`,
		ex.ParticipantID, ex.Prompt, ex.Response, ex.CreatedAt,
	)
	return err
}

func (s *PostgresExchangeStore) GetExchanges(ctx context.Context, participantID string) ([]Exchange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, prompt, response, created_at FROM exchanges WHERE participant_id = $1 ORDER BY id`,
		participantID,
	)
	if err != nil {
		return nil, err
	}
	exchanges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exchange, error) {
		var ex Exchange
		err := row.Scan(&ex.ParticipantID, &ex.Prompt, &ex.Response, &ex.CreatedAt)
		return ex, err
	})
	if err != nil {
		return nil, err
	}
	if exchanges == nil {
		exchanges = []Exchange{}
	}
	return exchanges, nil
}

// =============================================================================
// PostgresLedgerStore
// =============================================================================

type PostgresLedgerStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresLedgerStore) SaveLedger(ctx context.Context, entries []LedgerRecord) error {
	now := time.Now()
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO ledger_entries (participant_id, input_tokens, output_tokens, cost, calls, failures, balance, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (participant_id) DO UPDATE SET input_tokens = EXCLUDED.input_tokens,
			   output_tokens = EXCLUDED.output_tokens, cost = EXCLUDED.cost, calls = EXCLUDED.calls,
			   failures = EXCLUDED.failures, balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
			e.ParticipantID, e.InputTokens, e.OutputTokens, e.Cost, e.Calls, e.Failures, e.Balance, now,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) LoadLedger(ctx context.Context) ([]LedgerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, input_tokens, output_tokens, cost, calls, failures, balance, COALESCE(updated_at, NOW())
		 FROM ledger_entries ORDER BY participant_id`,
	)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerRecord, error) {
		var e LedgerRecord
		err := row.Scan(&e.ParticipantID, &e.InputTokens, &e.OutputTokens, &e.Cost, &e.Calls, &e.Failures, &e.Balance, &e.UpdatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []LedgerRecord{}
	}
	return records, nil
}

// =============================================================================
// PostgresEventStore
// =============================================================================

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func (s *PostgresEventStore) StoreEvent(ctx context.Context, event EventRecord) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_events (id, session_id, step, participant, event_type, data_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.SessionID, event.Step, event.Participant, event.EventType, event.DataJSON, event.CreatedAt,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]EventRecord, error) {
	query := `SELECT id, session_id, step, COALESCE(participant, ''), event_type, COALESCE(data_json, ''), created_at
		 FROM session_events WHERE session_id = $1 ORDER BY step OFFSET $2`
	args := []any{sessionID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EventRecord, error) {
		var e EventRecord
		err := row.Scan(&e.ID, &e.SessionID, &e.Step, &e.Participant, &e.EventType, &e.DataJSON, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []EventRecord{}
	}
	return events, nil
}
