package v1

import (
	"context"

	"github.com/gosuda/chorus/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store and *sqlite.Store satisfy this interface.
type DataStore interface {
	Sessions() domain.SessionRepository
	Agents() domain.AgentRepository
	Tools() domain.ToolRepository
	Assignments() domain.AssignmentRepository
	Messages() domain.MessageRepository
	RunLogs() domain.RunLogRepository
}

// Collaborator runs a collaboration turn sequence for a session.
// *collab.Orchestrator satisfies this interface.
type Collaborator interface {
	RunCollaboration(ctx context.Context, session *domain.Session, userText string, metadata map[string]any) ([]*domain.Message, error)
}
