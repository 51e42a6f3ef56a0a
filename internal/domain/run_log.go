package domain

import (
	"context"
	"time"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// ValidTransition reports whether a run may move from s to next.
// running is the only non-terminal state.
func (s RunStatus) ValidTransition(next RunStatus) bool {
	return s == RunStatusRunning && (next == RunStatusSuccess || next == RunStatusError)
}

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// RunLog is the durable audit record of one collaboration run.
type RunLog struct {
	ID        int64          `json:"id"`
	SessionPK int64          `json:"-"`
	AgentID   *int64         `json:"agent_id,omitempty"`
	Status    RunStatus      `json:"status"`
	Details   string         `json:"details"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type RunLogRepository interface {
	Create(ctx context.Context, r *RunLog) error
	// Finish moves a running record to a terminal status. It returns
	// ErrInvalidTransition when the record is no longer running.
	Finish(ctx context.Context, r *RunLog) error
	GetByID(ctx context.Context, id int64) (*RunLog, error)
	// ListBySession returns records newest first.
	ListBySession(ctx context.Context, sessionPK int64) ([]*RunLog, error)
}
