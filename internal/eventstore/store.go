package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/voicepay/internal/config"
	_ "modernc.org/sqlite"
)

// Journal entry kinds written by the session loop.
const (
	KindSessionStarted   = "session.started"
	KindUtterance        = "utterance"
	KindTransition       = "transition"
	KindCommit           = "transaction.committed"
	KindRecognitionError = "recognition.error"
	KindUIEvent          = "ui.event"
)

// Event is one journaled dialogue occurrence.
type Event struct {
	ID         int64
	SessionID  string
	TraceID    string
	Kind       string
	State      string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// Store is the SQLite-backed audit journal. In ephemeral mode every write is
// accepted and discarded.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open prepares the journal according to cfg.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    node_id TEXT,
    started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    trace_id TEXT,
    kind TEXT NOT NULL,
    state TEXT,
    payload BLOB,
    recorded_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_journal_session ON journal(session_id, id);
CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSession registers a session so its journal entries can be pruned with it.
func (s *Store) BeginSession(ctx context.Context, sessionID, nodeID string) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, node_id, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET node_id=excluded.node_id`,
		sessionID, nodeID, s.clock().UTC().UnixMilli())
	return err
}

// Append writes evt. A zero RecordedAt is stamped with the store clock.
func (s *Store) Append(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.Kind == "" {
		return errors.New("journal event kind required")
	}
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal(session_id, trace_id, kind, state, payload, recorded_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		evt.SessionID, evt.TraceID, evt.Kind, evt.State, []byte(evt.Payload), evt.RecordedAt.UTC().UnixMilli())
	return err
}

// Record marshals payload to JSON and appends it under kind.
func (s *Store) Record(ctx context.Context, sessionID, traceID, kind, state string, payload any) error {
	if s.disabled() {
		return nil
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = data
	}
	return s.Append(ctx, Event{SessionID: sessionID, TraceID: traceID, Kind: kind, State: state, Payload: raw})
}

// SessionEvents returns up to limit entries for a session in write order.
func (s *Store) SessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, trace_id, kind, state, payload, recorded_at
		 FROM journal WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			traceID sql.NullString
			state   sql.NullString
			payload []byte
			millis  int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &traceID, &e.Kind, &state, &payload, &millis); err != nil {
			return nil, err
		}
		e.TraceID = traceID.String
		e.State = state.String
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		e.RecordedAt = time.UnixMilli(millis).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountKind reports how many entries of kind the journal holds.
func (s *Store) CountKind(ctx context.Context, kind string) (int, error) {
	if s.disabled() {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

// Prune applies the configured retention: entries older than RetentionDays
// and sessions beyond the newest MaxSessions are removed.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM journal WHERE recorded_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Healthy reports whether the database answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	if s.disabled() {
		return true
	}
	return s.db.PingContext(ctx) == nil
}
