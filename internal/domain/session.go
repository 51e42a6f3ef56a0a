package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is a persisted conversation. SessionID is the external identifier
// used by callers and by the broadcast topic; ID is the store's primary key.
type Session struct {
	ID        int64          `json:"-"`
	SessionID string         `json:"session_id"`
	Title     string         `json:"title"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession creates a Session, generating an external identifier when none is given.
func NewSession(sessionID, title, userID string, metadata map[string]any) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(sessionID) > 64 {
		return nil, errors.New("session: session_id must be at most 64 characters")
	}
	now := time.Now().UTC()
	return &Session{
		SessionID: sessionID,
		Title:     title,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DisplayName returns the title, falling back to the external identifier.
func (s *Session) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.SessionID
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	// Update writes Title, UserID, Metadata and UpdatedAt.
	Update(ctx context.Context, s *Session) error
	// Delete removes the session together with its assignments, messages
	// and run logs.
	Delete(ctx context.Context, sessionID string) error
}
