package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    state TEXT NOT NULL,
    result TEXT,
    consolidated INTEGER DEFAULT 0,
    roles_json TEXT,
    error TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS session_outcomes (
    session_id TEXT NOT NULL REFERENCES sessions(id),
    participant_id TEXT NOT NULL,
    role TEXT,
    success INTEGER NOT NULL,
    content TEXT,
    error_kind TEXT,
    error TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    cost REAL DEFAULT 0,
    step INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    PRIMARY KEY (session_id, participant_id)
);

CREATE TABLE IF NOT EXISTS exchanges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    participant_id TEXT NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_exchanges_participant ON exchanges(participant_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
    participant_id TEXT PRIMARY KEY,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    cost REAL DEFAULT 0,
    calls INTEGER DEFAULT 0,
    failures INTEGER DEFAULT 0,
    balance REAL NOT NULL,
    updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS session_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    participant TEXT,
    event_type TEXT NOT NULL,
    data_json TEXT,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, step);
`

// NewSQLiteBundle creates a Bundle backed by SQLite at the given path
func NewSQLiteBundle(dbPath string) (*Bundle, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Bundle{
		Sessions:  &SQLiteSessionStore{db: db},
		Exchanges: &SQLiteExchangeStore{db: db},
		Ledger:    &SQLiteLedgerStore{db: db},
		Events:    &SQLiteEventStore{db: db},
		closer:    db.Close,
	}, nil
}

// =============================================================================
// SQLiteSessionStore
// =============================================================================

type SQLiteSessionStore struct {
	db *sql.DB
}

func (s *SQLiteSessionStore) SaveSession(ctx context.Context, rec SessionRecord, outcomes []OutcomeRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, query, state, result, consolidated, roles_json, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.State, rec.Result, boolToInt(rec.Consolidated), rec.RolesJSON, rec.Error, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_outcomes WHERE session_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_outcomes (session_id, participant_id, role, success, content, error_kind, error, input_tokens, output_tokens, cost, step, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, o.ParticipantID, o.Role, boolToInt(o.Success), o.Content, o.ErrorKind, o.Error,
			o.InputTokens, o.OutputTokens, o.Cost, o.Step, o.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("save outcome %s: %w", o.ParticipantID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSessionStore) GetSession(ctx context.Context, id string) (*SessionRecord, []OutcomeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, state, result, consolidated, roles_json, error, started_at, finished_at FROM sessions WHERE id = ?`,
		id,
	)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, role, success, content, error_kind, error, input_tokens, output_tokens, cost, step, duration_ms
		 FROM session_outcomes WHERE session_id = ? ORDER BY step`,
		id,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var outcomes []OutcomeRecord
	for rows.Next() {
		o := OutcomeRecord{SessionID: id}
		var role, content, errorKind, errMsg sql.NullString
		var success int
		if err := rows.Scan(&o.ParticipantID, &role, &success, &content, &errorKind, &errMsg,
			&o.InputTokens, &o.OutputTokens, &o.Cost, &o.Step, &o.DurationMS); err != nil {
			return nil, nil, err
		}
		o.Role = role.String
		o.Success = success != 0
		o.Content = content.String
		o.ErrorKind = errorKind.String
		o.Error = errMsg.String
		outcomes = append(outcomes, o)
	}
	return rec, outcomes, rows.Err()
}

func (s *SQLiteSessionStore) ListSessions(ctx context.Context, limit, offset int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, state, result, consolidated, roles_json, error, started_at, finished_at
		 FROM sessions ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var result, rolesJSON, errMsg sql.NullString
	var consolidated int
	var finishedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Query, &rec.State, &result, &consolidated, &rolesJSON, &errMsg, &rec.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.Result = result.String
	rec.Consolidated = consolidated != 0
	rec.RolesJSON = rolesJSON.String
	rec.Error = errMsg.String
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	return &rec, nil
}

// =============================================================================
// SQLiteExchangeStore
// =============================================================================

type SQLiteExchangeStore struct {
	db *sql.DB
}

func (s *SQLiteExchangeStore) AppendExchange(ctx context.Context, ex Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (participant_id, prompt, response, created_at) VALUES (?, ?, ?, ?)`,
		ex.ParticipantID, ex.Prompt, ex.Response, ex.CreatedAt,
	)
	return err
}

func (s *SQLiteExchangeStore) GetExchanges(ctx context.Context, participantID string) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, prompt, response, created_at FROM exchanges WHERE participant_id = ? ORDER BY id`,
		participantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exchanges := []Exchange{}
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ParticipantID, &ex.Prompt, &ex.Response, &ex.CreatedAt); err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// =============================================================================
// SQLiteLedgerStore
// =============================================================================

type SQLiteLedgerStore struct {
	db *sql.DB
}

func (s *SQLiteLedgerStore) SaveLedger(ctx context.Context, entries []LedgerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO ledger_entries (participant_id, input_tokens, output_tokens, cost, calls, failures, balance, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ParticipantID, e.InputTokens, e.OutputTokens, e.Cost, e.Calls, e.Failures, e.Balance, now,
		)
		if err != nil {
			return fmt.Errorf("save ledger entry %s: %w", e.ParticipantID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteLedgerStore) LoadLedger(ctx context.Context) ([]LedgerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, input_tokens, output_tokens, cost, calls, failures, balance, updated_at
		 FROM ledger_entries ORDER BY participant_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []LedgerRecord{}
	for rows.Next() {
		var e LedgerRecord
		var updatedAt sql.NullTime
		if err := rows.Scan(&e.ParticipantID, &e.InputTokens, &e.OutputTokens, &e.Cost, &e.Calls, &e.Failures, &e.Balance, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			e.UpdatedAt = updatedAt.Time
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

// =============================================================================
// SQLiteEventStore
// =============================================================================

type SQLiteEventStore struct {
	db *sql.DB
}

func (s *SQLiteEventStore) StoreEvent(ctx context.Context, event EventRecord) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (id, session_id, step, participant, event_type, data_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.SessionID, event.Step, event.Participant, event.EventType, event.DataJSON, event.CreatedAt,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, sessionID string, limit, offset int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, step, participant, event_type, data_json, created_at
		 FROM session_events WHERE session_id = ? ORDER BY step LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var e EventRecord
		var participant, data sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Step, &participant, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Participant = participant.String
		e.DataJSON = data.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
