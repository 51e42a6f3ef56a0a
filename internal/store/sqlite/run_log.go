package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gosuda/chorus/internal/domain"
)

type RunLogRepo struct {
	db dbtx
}

func NewRunLogRepo(db dbtx) *RunLogRepo {
	return &RunLogRepo{db: db}
}

func (r *RunLogRepo) Create(ctx context.Context, l *domain.RunLog) error {
	extra, err := nullJSON(l.Extra)
	if err != nil {
		return fmt.Errorf("runLogRepo.Create: marshal extra: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO run_logs (session_pk, agent_id, status, details, extra, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.SessionPK, l.AgentID, string(l.Status), l.Details, extra, l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("runLogRepo.Create: %w", mapError(err))
	}
	if l.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("runLogRepo.Create: last insert id: %w", err)
	}

	return nil
}

func (r *RunLogRepo) Finish(ctx context.Context, l *domain.RunLog) error {
	if !l.Status.Terminal() {
		return fmt.Errorf("runLogRepo.Finish: target status %q: %w", l.Status, domain.ErrInvalidTransition)
	}

	extra, err := nullJSON(l.Extra)
	if err != nil {
		return fmt.Errorf("runLogRepo.Finish: marshal extra: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE run_logs SET status = ?, details = ?, extra = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(l.Status), l.Details, extra, l.UpdatedAt.UTC(), l.ID, string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("runLogRepo.Finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("runLogRepo.Finish: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("runLogRepo.Finish: run %d: %w", l.ID, domain.ErrInvalidTransition)
	}

	return nil
}

func (r *RunLogRepo) GetByID(ctx context.Context, id int64) (*domain.RunLog, error) {
	var l domain.RunLog
	var extra sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_pk, agent_id, status, details, extra, created_at, updated_at
		 FROM run_logs WHERE id = ?`,
		id,
	).Scan(&l.ID, &l.SessionPK, &l.AgentID, &l.Status, &l.Details, &extra, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("runLogRepo.GetByID: %w", mapError(err))
	}

	if l.Extra, err = unmarshalJSON(extra); err != nil {
		return nil, fmt.Errorf("runLogRepo.GetByID: unmarshal extra: %w", err)
	}

	return &l, nil
}

func (r *RunLogRepo) ListBySession(ctx context.Context, sessionPK int64) ([]*domain.RunLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_pk, agent_id, status, details, extra, created_at, updated_at
		 FROM run_logs WHERE session_pk = ?
		 ORDER BY created_at DESC, id DESC`,
		sessionPK,
	)
	if err != nil {
		return nil, fmt.Errorf("runLogRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	logs := []*domain.RunLog{}
	for rows.Next() {
		var l domain.RunLog
		var extra sql.NullString

		if err = rows.Scan(&l.ID, &l.SessionPK, &l.AgentID, &l.Status, &l.Details, &extra, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("runLogRepo.ListBySession: scan: %w", err)
		}
		if l.Extra, err = unmarshalJSON(extra); err != nil {
			return nil, fmt.Errorf("runLogRepo.ListBySession: unmarshal extra: %w", err)
		}
		logs = append(logs, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("runLogRepo.ListBySession: rows: %w", err)
	}

	return logs, nil
}
