package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gosuda/chorus/internal/domain"
)

type SessionRepo struct {
	db dbtx
}

func NewSessionRepo(db dbtx) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	metadata, err := nullJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, title, user_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Title, s.UserID, metadata, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", mapError(err))
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sessionRepo.Create: last insert id: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	var metadata sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, user_id, metadata, created_at, updated_at
		 FROM chat_sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&s.ID, &s.SessionID, &s.Title, &s.UserID, &metadata, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: %w", mapError(err))
	}

	if s.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: unmarshal metadata: %w", err)
	}

	return &s, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
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
		var metadata sql.NullString

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
	metadata, err := nullJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, user_id = ?, metadata = ?, updated_at = ?
		 WHERE session_id = ?`,
		s.Title, s.UserID, metadata, s.UpdatedAt.UTC(), s.SessionID,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sessionRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

// Delete relies on the schema's ON DELETE CASCADE for the owned rows.
func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessionRepo.Delete: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sessionRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}
