package domain

import (
	"context"
	"errors"
	"time"
)

// AgentProfile describes a participant that can take turns in a session.
// The orchestrator only ever reads profiles.
type AgentProfile struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Description string    `json:"description"`
	ModelHint   string    `json:"model_hint"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAgentProfile creates an active AgentProfile with validated required fields.
func NewAgentProfile(name, role, description, modelHint string) (*AgentProfile, error) {
	if name == "" {
		return nil, errors.New("agent: name is required")
	}
	if len(name) > 64 {
		return nil, errors.New("agent: name must be at most 64 characters")
	}
	now := time.Now().UTC()
	return &AgentProfile{
		Name:        name,
		Role:        role,
		Description: description,
		ModelHint:   modelHint,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ToolDefinition records a tool that may be associated with an assignment.
type ToolDefinition struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"schema,omitempty"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AgentAssignment places an agent at a position in a session's turn order.
// Order is not unique; ties are broken by ID.
type AgentAssignment struct {
	ID             int64            `json:"id"`
	SessionPK      int64            `json:"-"`
	Agent          *AgentProfile    `json:"agent"`
	Order          int              `json:"order"`
	PromptOverride string           `json:"prompt_override"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type AgentRepository interface {
	Create(ctx context.Context, a *AgentProfile) error
	GetByName(ctx context.Context, name string) (*AgentProfile, error)
	List(ctx context.Context) ([]*AgentProfile, error)
	// Delete fails with ErrProtected while an assignment references the profile.
	// Messages and run logs that reference it are detached.
	Delete(ctx context.Context, id int64) error
}

type ToolRepository interface {
	Create(ctx context.Context, t *ToolDefinition) error
	GetByName(ctx context.Context, name string) (*ToolDefinition, error)
}

type AssignmentRepository interface {
	// Create fails with ErrConflict when the agent is already assigned to the session.
	Create(ctx context.Context, a *AgentAssignment, toolIDs []int64) error
	// ListBySession returns assignments ordered by (order, id) with Agent and Tools populated.
	ListBySession(ctx context.Context, sessionPK int64) ([]*AgentAssignment, error)
}
