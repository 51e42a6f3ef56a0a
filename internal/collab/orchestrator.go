// Package collab runs multi-agent collaboration turns over a session: it
// persists the user's message and every agent reply atomically, tracks the
// run in a RunLog and broadcasts progress events.
package collab

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chorus/internal/agent"
	"github.com/gosuda/chorus/internal/broadcast"
	"github.com/gosuda/chorus/internal/domain"
)

const (
	runStartedDetails   = "Collaboration run started"
	runCompletedDetails = "Collaboration run completed"
)

// TurnError reports the agent whose turn failed.
type TurnError struct {
	Agent string
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn of agent %q: %v", e.Agent, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Orchestrator drives collaboration runs.
type Orchestrator struct {
	store       domain.ConversationStore
	producer    agent.Producer
	events      broadcast.Broadcaster
	tracker     *RunTracker
	now         func() time.Time
	deferEvents bool
	runTimeout  time.Duration
}

type Option func(*Orchestrator)

// WithClock overrides the clock used for message and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDeferredEvents holds message_created and agent_turn events until the
// transaction commits, and drops them when it rolls back.
func WithDeferredEvents(enabled bool) Option {
	return func(o *Orchestrator) { o.deferEvents = enabled }
}

// WithRunTimeout bounds a whole run. Zero means no bound.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.runTimeout = d }
}

func NewOrchestrator(store domain.ConversationStore, producer agent.Producer, events broadcast.Broadcaster, opts ...Option) *Orchestrator {
	if events == nil {
		events = broadcast.Nop{}
	}
	o := &Orchestrator{
		store:    store,
		producer: producer,
		events:   events,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracker = NewRunTracker(store.RunLogs(), o.now)
	return o
}

// RunCollaboration stores userText as a user message and lets every agent
// assigned to session take one turn, in assignment order. It returns the
// messages created by the run, user message first. On failure nothing from
// the run is persisted except its RunLog, which ends in error.
//
// The caller validates userText; metadata is stored on the user message.
func (o *Orchestrator) RunCollaboration(ctx context.Context, session *domain.Session, userText string, metadata map[string]any) ([]*domain.Message, error) {
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	run, err := o.tracker.Start(ctx, session.ID, runStartedDetails)
	if err != nil {
		return nil, fmt.Errorf("collab.Orchestrator.RunCollaboration: %w", err)
	}

	logger := log.With().Str("session_id", session.SessionID).Int64("run_id", run.ID).Logger()
	logger.Info().Msg("collab: run started")

	o.events.Publish(ctx, session.SessionID, broadcast.EventRunStarted, map[string]any{
		"session_id": session.SessionID,
		"run_id":     run.ID,
	})

	sink := o.events
	var buf *broadcast.Buffer
	if o.deferEvents {
		buf = broadcast.NewBuffer(o.events)
		sink = buf
	}

	var created []*domain.Message
	var bodyErr error
	err = o.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		created, bodyErr = o.converse(ctx, tx, session, userText, metadata, sink, logger)
		return bodyErr
	})
	if err != nil {
		if buf != nil {
			buf.Discard()
		}
		if bodyErr != nil {
			err = bodyErr
		}
		return nil, o.fail(ctx, session, run, err, logger)
	}

	if buf != nil {
		buf.Flush(ctx)
	}

	ids := make([]int64, 0, len(created))
	for _, m := range created {
		ids = append(ids, m.ID)
	}

	err = o.tracker.Succeed(context.WithoutCancel(ctx), run, runCompletedDetails, map[string]any{"messages_created": ids})
	if err != nil {
		return nil, o.fail(ctx, session, run, err, logger)
	}

	o.events.Publish(ctx, session.SessionID, broadcast.EventRunCompleted, map[string]any{"run_id": run.ID})
	logger.Info().Int("messages", len(created)).Msg("collab: run completed")

	return created, nil
}

// converse is the transactional body of a run.
func (o *Orchestrator) converse(
	ctx context.Context,
	tx domain.Tx,
	session *domain.Session,
	userText string,
	metadata map[string]any,
	events broadcast.Broadcaster,
	logger zerolog.Logger,
) ([]*domain.Message, error) {
	if err := tx.LockSession(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	user := &domain.Message{
		SessionPK: session.ID,
		Role:      domain.RoleUser,
		Content:   userText,
		Metadata:  metadata,
		CreatedAt: o.now(),
	}
	if err := tx.Messages().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	created := []*domain.Message{user}
	events.Publish(ctx, session.SessionID, broadcast.EventMessageCreated, map[string]any{"message_id": user.ID})

	assignments, err := tx.Assignments().ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	conversation, err := tx.Messages().ListBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	for _, a := range assignments {
		if err = ctx.Err(); err != nil {
			return nil, &TurnError{Agent: a.Agent.Name, Err: err}
		}

		res, err := o.producer.ProduceTurn(ctx, agent.TurnRequest{
			Session:        session,
			Agent:          a.Agent,
			PromptOverride: a.PromptOverride,
			Tools:          a.Tools,
			Conversation:   slices.Clone(conversation),
		})
		if err != nil {
			return nil, &TurnError{Agent: a.Agent.Name, Err: err}
		}

		agentID := a.Agent.ID
		latency := res.LatencyMS
		msg := &domain.Message{
			SessionPK:        session.ID,
			Role:             domain.RoleAgent,
			AgentID:          &agentID,
			AgentName:        a.Agent.Name,
			Content:          res.Content,
			TokensPrompt:     res.TokensPrompt,
			TokensCompletion: res.TokensCompletion,
			LatencyMS:        &latency,
			Metadata: map[string]any{
				"model":                res.Model,
				"prompt_override_used": res.PromptOverrideUsed,
			},
			CreatedAt: o.now(),
		}
		if err = tx.Messages().Create(ctx, msg); err != nil {
			return nil, fmt.Errorf("save turn of agent %q: %w", a.Agent.Name, err)
		}

		created = append(created, msg)
		conversation = append(conversation, msg)

		logger.Debug().Str("agent", a.Agent.Name).Int64("message_id", msg.ID).Int("latency_ms", latency).Msg("collab: agent turn")
		events.Publish(ctx, session.SessionID, broadcast.EventAgentTurn, map[string]any{
			"agent":      a.Agent.Name,
			"role":       a.Agent.Role,
			"message_id": msg.ID,
			"content":    msg.Content,
		})
	}

	return created, nil
}

// fail records cause on the run, announces it and returns it wrapped.
func (o *Orchestrator) fail(ctx context.Context, session *domain.Session, run *domain.RunLog, cause error, logger zerolog.Logger) error {
	if err := o.tracker.Fail(context.WithoutCancel(ctx), run, "Run failed: "+cause.Error()); err != nil {
		logger.Error().Err(err).Msg("collab: record run failure")
	}

	o.events.Publish(ctx, session.SessionID, broadcast.EventRunError, map[string]any{
		"run_id": run.ID,
		"error":  cause.Error(),
	})
	logger.Warn().Err(cause).Msg("collab: run failed")

	return fmt.Errorf("collab.Orchestrator.RunCollaboration: %w", cause)
}
