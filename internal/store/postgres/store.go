package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/chorus/internal/domain"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can
// run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool        *pgxpool.Pool
	sessions    *SessionRepo
	agents      *AgentRepo
	tools       *ToolRepo
	assignments *AssignmentRepo
	messages    *MessageRepo
	runLogs     *RunLogRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		sessions:    NewSessionRepo(pool),
		agents:      NewAgentRepo(pool),
		tools:       NewToolRepo(pool),
		assignments: NewAssignmentRepo(pool),
		messages:    NewMessageRepo(pool),
		runLogs:     NewRunLogRepo(pool),
	}, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Sessions() domain.SessionRepository       { return s.sessions }
func (s *Store) Agents() domain.AgentRepository           { return s.agents }
func (s *Store) Tools() domain.ToolRepository             { return s.tools }
func (s *Store) Assignments() domain.AssignmentRepository { return s.assignments }
func (s *Store) Messages() domain.MessageRepository       { return s.messages }
func (s *Store) RunLogs() domain.RunLogRepository         { return s.runLogs }

// InTx runs fn inside a single database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(pgTx pgx.Tx) error {
		return fn(ctx, &txScope{
			tx:          pgTx,
			messages:    NewMessageRepo(pgTx),
			assignments: NewAssignmentRepo(pgTx),
		})
	})
	if err != nil {
		return fmt.Errorf("postgres.Store.InTx: %w", err)
	}
	return nil
}

type txScope struct {
	tx          pgx.Tx
	messages    *MessageRepo
	assignments *AssignmentRepo
}

// LockSession takes a transaction-scoped advisory lock keyed by the session's primary key.
func (t *txScope) LockSession(ctx context.Context, sessionPK int64) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, sessionPK); err != nil {
		return fmt.Errorf("postgres.LockSession: %w", err)
	}
	return nil
}

func (t *txScope) Messages() domain.MessageRepository       { return t.messages }
func (t *txScope) Assignments() domain.AssignmentRepository { return t.assignments }

// mapError translates driver errors into domain sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// marshalJSON keeps SQL NULL for nil maps.
func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
