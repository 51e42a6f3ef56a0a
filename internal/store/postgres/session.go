package postgres

import (
	"context"
	"fmt"

	"github.com/gosuda/chorus/internal/domain"
)

type SessionRepo struct {
	db querier
}

func NewSessionRepo(db querier) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	metadata, err := marshalJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: marshal metadata: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (session_id, title, user_id, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.SessionID, s.Title, s.UserID, metadata, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", mapError(err))
	}

	return nil
}

func (r *SessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	var metadata []byte

	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, title, user_id, metadata, created_at, updated_at
		 FROM chat_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&s.ID, &s.SessionID, &s.Title, &s.UserID, &metadata, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: %w", mapError(err))
	}

	s.Metadata, err = unmarshalJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: unmarshal metadata: %w", err)
	}

	return &s, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, title, user_id, metadata, created_at, updated_at
		 FROM chat_sessions ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.List: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var s domain.Session
		var metadata []byte

		if err = rows.Scan(&s.ID, &s.SessionID, &s.Title, &s.UserID, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sessionRepo.List: scan: %w", err)
		}
		if s.Metadata, err = unmarshalJSON(metadata); err != nil {
			return nil, fmt.Errorf("sessionRepo.List: unmarshal metadata: %w", err)
		}
		sessions = append(sessions, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sessionRepo.List: rows: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepo) Update(ctx context.Context, s *domain.Session) error {
	metadata, err := marshalJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: marshal metadata: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, user_id = $2, metadata = $3, updated_at = $4
		 WHERE session_id = $5`,
		s.Title, s.UserID, metadata, s.UpdatedAt, s.SessionID,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

// Delete relies on the schema's ON DELETE CASCADE for the owned rows.
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}
