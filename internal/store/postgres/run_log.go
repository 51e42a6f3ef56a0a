package postgres

import (
	"context"
	"fmt"

	"github.com/gosuda/chorus/internal/domain"
)

type RunLogRepo struct {
	db querier
}

func NewRunLogRepo(db querier) *RunLogRepo {
	return &RunLogRepo{db: db}
}

func (r *RunLogRepo) Create(ctx context.Context, l *domain.RunLog) error {
	extra, err := marshalJSON(l.Extra)
	if err != nil {
		return fmt.Errorf("runLogRepo.Create: marshal extra: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO run_logs (session_pk, agent_id, status, details, extra, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		l.SessionPK, l.AgentID, l.Status, l.Details, extra, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("runLogRepo.Create: %w", mapError(err))
	}

	return nil
}

// Finish only matches rows still in the running state, so a record receives
// at most one terminal update.
func (r *RunLogRepo) Finish(ctx context.Context, l *domain.RunLog) error {
	if !l.Status.Terminal() {
		return fmt.Errorf("runLogRepo.Finish: target status %q: %w", l.Status, domain.ErrInvalidTransition)
	}

	extra, err := marshalJSON(l.Extra)
	if err != nil {
		return fmt.Errorf("runLogRepo.Finish: marshal extra: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE run_logs SET status = $1, details = $2, extra = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		l.Status, l.Details, extra, l.UpdatedAt, l.ID, domain.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("runLogRepo.Finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("runLogRepo.Finish: run %d: %w", l.ID, domain.ErrInvalidTransition)
	}

	return nil
}

func (r *RunLogRepo) GetByID(ctx context.Context, id int64) (*domain.RunLog, error) {
	var l domain.RunLog
	var extra []byte

	err := r.db.QueryRow(ctx,
		`SELECT id, session_pk, agent_id, status, details, extra, created_at, updated_at
		 FROM run_logs WHERE id = $1`,
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
	rows, err := r.db.Query(ctx,
		`SELECT id, session_pk, agent_id, status, details, extra, created_at, updated_at
		 FROM run_logs WHERE session_pk = $1
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
		var extra []byte

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
