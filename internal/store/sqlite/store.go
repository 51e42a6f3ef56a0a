// Package sqlite implements the conversation store on SQLite for local
// development and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/gosuda/chorus/internal/domain"
)

//go:embed schema.sql
var schema string

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	sessions    *SessionRepo
	agents      *AgentRepo
	tools       *ToolRepo
	assignments *AssignmentRepo
	messages    *MessageRepo
	runLogs     *RunLogRepo
}

// DefaultBusyTimeout is used when New is given a non-positive busy timeout.
const DefaultBusyTimeout = 10 * time.Second

// New opens the database at path and applies the schema. Every transaction
// starts with BEGIN IMMEDIATE, so writers on one database are serialized:
// a collaboration run holds the write lock across all of its turns, and any
// other writer waits up to busyTimeout for it before failing with
// "database is locked".
func New(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: migrate: %w", err)
	}

	return &Store{
		db:          db,
		sessions:    NewSessionRepo(db),
		agents:      NewAgentRepo(db),
		tools:       NewToolRepo(db),
		assignments: NewAssignmentRepo(db),
		messages:    NewMessageRepo(db),
		runLogs:     NewRunLogRepo(db),
	}, nil
}

func dsn(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL",
		path, busyTimeout.Milliseconds())
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite.Store.Close: %w", err)
	}
	return nil
}

func (s *Store) Sessions() domain.SessionRepository       { return s.sessions }
func (s *Store) Agents() domain.AgentRepository           { return s.agents }
func (s *Store) Tools() domain.ToolRepository             { return s.tools }
func (s *Store) Assignments() domain.AssignmentRepository { return s.assignments }
func (s *Store) Messages() domain.MessageRepository       { return s.messages }
func (s *Store) RunLogs() domain.RunLogRepository         { return s.runLogs }

// InTx runs fn inside a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := inTx(ctx, s.db, func(q dbtx) error {
		return fn(ctx, &txScope{
			messages:    NewMessageRepo(q),
			assignments: NewAssignmentRepo(q),
		})
	}); err != nil {
		return fmt.Errorf("sqlite.Store.InTx: %w", err)
	}
	return nil
}

type txScope struct {
	messages    *MessageRepo
	assignments *AssignmentRepo
}

// LockSession is a no-op: BEGIN IMMEDIATE already holds the database write lock.
func (t *txScope) LockSession(context.Context, int64) error { return nil }

func (t *txScope) Messages() domain.MessageRepository       { return t.messages }
func (t *txScope) Assignments() domain.AssignmentRepository { return t.assignments }

// inTx runs fn in a new transaction when q is the database handle and
// directly when q is already a transaction.
func inTx(ctx context.Context, q dbtx, fn func(q dbtx) error) (err error) {
	db, ok := q.(*sql.DB)
	if !ok {
		return fn(q)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// mapError translates driver errors into domain sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", domain.ErrConflict, sqErr.Error())
		}
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// nullJSON returns nil for nil maps so the column stays NULL.
func nullJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSON(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}
