package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/gosuda/chorus/internal/domain"
)

// RunTracker owns the RunLog of each collaboration run: one running record
// at start and exactly one terminal update.
type RunTracker struct {
	runs domain.RunLogRepository
	now  func() time.Time
}

func NewRunTracker(runs domain.RunLogRepository, now func() time.Time) *RunTracker {
	if now == nil {
		now = time.Now
	}
	return &RunTracker{runs: runs, now: now}
}

// Start durably records a running run for the session.
func (t *RunTracker) Start(ctx context.Context, sessionPK int64, details string) (*domain.RunLog, error) {
	now := t.now()
	run := &domain.RunLog{
		SessionPK: sessionPK,
		Status:    domain.RunStatusRunning,
		Details:   details,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("collab.RunTracker.Start: %w", err)
	}
	return run, nil
}

// Succeed moves run to success and attaches extra.
func (t *RunTracker) Succeed(ctx context.Context, run *domain.RunLog, details string, extra map[string]any) error {
	if err := t.finish(ctx, run, domain.RunStatusSuccess, details, extra); err != nil {
		return fmt.Errorf("collab.RunTracker.Succeed: %w", err)
	}
	return nil
}

// Fail moves run to error. Extra is left as it was.
func (t *RunTracker) Fail(ctx context.Context, run *domain.RunLog, details string) error {
	if err := t.finish(ctx, run, domain.RunStatusError, details, run.Extra); err != nil {
		return fmt.Errorf("collab.RunTracker.Fail: %w", err)
	}
	return nil
}

// finish updates a copy so run keeps its old state when the write fails.
func (t *RunTracker) finish(ctx context.Context, run *domain.RunLog, status domain.RunStatus, details string, extra map[string]any) error {
	if !run.Status.ValidTransition(status) {
		return fmt.Errorf("%s -> %s: %w", run.Status, status, domain.ErrInvalidTransition)
	}

	next := *run
	next.Status = status
	next.Details = details
	next.Extra = extra
	next.UpdatedAt = t.now()

	if err := t.runs.Finish(ctx, &next); err != nil {
		return err
	}

	*run = next
	return nil
}
