package domain

import (
	"context"
	"time"
)

type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
	RoleTool   MessageRole = "tool"
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one immutable entry of a session's conversation. History order
// is (CreatedAt, ID) ascending.
type Message struct {
	ID               int64          `json:"id"`
	SessionPK        int64          `json:"-"`
	Role             MessageRole    `json:"role"`
	AgentID          *int64         `json:"agent_id,omitempty"`
	AgentName        string         `json:"agent_name,omitempty"` // empty when the profile was detached
	Content          string         `json:"content"`
	ToolName         string         `json:"tool_name,omitempty"`
	ToolInput        map[string]any `json:"tool_input,omitempty"`
	ToolOutput       map[string]any `json:"tool_output,omitempty"`
	TokensPrompt     *int           `json:"tokens_prompt,omitempty"`
	TokensCompletion *int           `json:"tokens_completion,omitempty"`
	LatencyMS        *int           `json:"latency_ms,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Speaker returns the agent name for agent messages and the role otherwise.
func (m *Message) Speaker() string {
	if m.AgentName != "" {
		return m.AgentName
	}
	if m.Role == RoleAgent || m.Role == RoleTool {
		return "unknown agent"
	}
	return string(m.Role)
}

type MessageRepository interface {
	// Create assigns ID. CreatedAt must be set by the caller.
	Create(ctx context.Context, m *Message) error
	// ListBySession returns the full history ordered by (created_at, id).
	ListBySession(ctx context.Context, sessionPK int64) ([]*Message, error)
	CountBySession(ctx context.Context, sessionPK int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*Message, error)
	// List returns messages of every session ordered by (created_at, id),
	// starting after the given offset.
	List(ctx context.Context, limit, offset int) ([]*Message, error)
}
