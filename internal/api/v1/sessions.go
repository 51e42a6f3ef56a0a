package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/chorus/internal/domain"
)

type CreateSessionInput struct {
	Body struct {
		SessionID string         `json:"session_id,omitempty" maxLength:"64" doc:"External session id; generated when empty"`
		Title     string         `json:"title,omitempty" maxLength:"255" doc:"Session title"`
		UserID    string         `json:"user_id,omitempty" maxLength:"128" doc:"Owning user"`
		Metadata  map[string]any `json:"metadata,omitempty" doc:"Free-form metadata"`
	}
}

type CreateSessionOutput struct {
	Body *domain.Session
}

type ListSessionsInput struct{}

type ListSessionsOutput struct {
	Body []*domain.Session
}

type SessionPathInput struct {
	SessionID string `path:"sessionID" maxLength:"64" doc:"External session id"`
}

type GetSessionOutput struct {
	Body *domain.Session
}

type UpdateSessionInput struct {
	SessionID string `path:"sessionID" maxLength:"64" doc:"External session id"`
	Body      struct {
		Title    *string        `json:"title,omitempty" maxLength:"255" doc:"New session title"`
		UserID   *string        `json:"user_id,omitempty" maxLength:"128" doc:"New owning user"`
		Metadata map[string]any `json:"metadata,omitempty" doc:"Replaces the session metadata when present"`
	}
}

type DeleteSessionOutput struct{}

type AssignmentState struct {
	Order          int    `json:"order"`
	Agent          string `json:"agent"`
	Role           string `json:"role"`
	PromptOverride bool   `json:"prompt_override" doc:"Whether the assignment overrides the agent prompt"`
}

type SessionState struct {
	SessionID    string            `json:"session_id"`
	Title        string            `json:"title"`
	UserID       string            `json:"user_id"`
	MessageCount int64             `json:"message_count"`
	Assignments  []AssignmentState `json:"assignments"`
}

type GetSessionStateOutput struct {
	Body *SessionState
}

type ListMessagesOutput struct {
	Body []*domain.Message
}

type SendMessageInput struct {
	SessionID string `path:"sessionID" maxLength:"64" doc:"External session id"`
	Body      struct {
		Content string `json:"content,omitempty" doc:"User message that starts the collaboration run"`
	}
}

type SendMessageOutput struct {
	Body []*domain.Message
}

type ListRunsOutput struct {
	Body []*domain.RunLog
}

func RegisterSessionRoutes(api huma.API, store DataStore, collaborator Collaborator) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Create a chat session",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
		session, err := domain.NewSession(input.Body.SessionID, input.Body.Title, input.Body.UserID, input.Body.Metadata)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		if err = store.Sessions().Create(ctx, session); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("session_id already exists")
			}
			return nil, huma.Error500InternalServerError("failed to create session", err)
		}

		return &CreateSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List chat sessions, newest first",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, _ *ListSessionsInput) (*ListSessionsOutput, error) {
		sessions, err := store.Sessions().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list sessions", err)
		}

		return &ListSessionsOutput{Body: sessions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{sessionID}",
		Summary:     "Get a chat session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionPathInput) (*GetSessionOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		return &GetSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-session",
		Method:      http.MethodPatch,
		Path:        "/sessions/{sessionID}",
		Summary:     "Update the title, owner or metadata of a session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *UpdateSessionInput) (*GetSessionOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		if input.Body.Title != nil {
			session.Title = *input.Body.Title
		}
		if input.Body.UserID != nil {
			session.UserID = *input.Body.UserID
		}
		if input.Body.Metadata != nil {
			session.Metadata = input.Body.Metadata
		}
		session.UpdatedAt = time.Now().UTC()

		if err = store.Sessions().Update(ctx, session); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to update session", err)
		}

		return &GetSessionOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{sessionID}",
		Summary:       "Delete a session with its assignments, messages and runs",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *SessionPathInput) (*DeleteSessionOutput, error) {
		if err := store.Sessions().Delete(ctx, input.SessionID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete session", err)
		}

		return &DeleteSessionOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session-state",
		Method:      http.MethodGet,
		Path:        "/sessions/{sessionID}/state",
		Summary:     "Get the turn order and message count of a session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionPathInput) (*GetSessionStateOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		assignments, err := store.Assignments().ListBySession(ctx, session.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list assignments", err)
		}

		count, err := store.Messages().CountBySession(ctx, session.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count messages", err)
		}

		state := &SessionState{
			SessionID:    session.SessionID,
			Title:        session.Title,
			UserID:       session.UserID,
			MessageCount: count,
			Assignments:  make([]AssignmentState, 0, len(assignments)),
		}
		for _, a := range assignments {
			state.Assignments = append(state.Assignments, AssignmentState{
				Order:          a.Order,
				Agent:          a.Agent.Name,
				Role:           a.Agent.Role,
				PromptOverride: a.PromptOverride != "",
			})
		}

		return &GetSessionStateOutput{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-session-messages",
		Method:      http.MethodGet,
		Path:        "/sessions/{sessionID}/messages",
		Summary:     "List the message history of a session",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionPathInput) (*ListMessagesOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		messages, err := store.Messages().ListBySession(ctx, session.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list messages", err)
		}

		return &ListMessagesOutput{Body: messages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-session-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{sessionID}/send",
		Summary:     "Send a user message and run the agent collaboration",
		Description: "Progress is broadcast on the session's WebSocket channel while the run executes.",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
		if input.Body.Content == "" {
			return nil, huma.Error400BadRequest("content is required")
		}

		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		// A started run reaches a terminal state even if the client goes away.
		messages, err := collaborator.RunCollaboration(context.WithoutCancel(ctx), session, input.Body.Content, map[string]any{"source": "api"})
		if err != nil {
			return nil, huma.Error500InternalServerError("collaboration run failed", err)
		}

		return &SendMessageOutput{Body: messages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-session-runs",
		Method:      http.MethodGet,
		Path:        "/sessions/{sessionID}/runs",
		Summary:     "List collaboration runs of a session, newest first",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionPathInput) (*ListRunsOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		runs, err := store.RunLogs().ListBySession(ctx, session.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list runs", err)
		}

		return &ListRunsOutput{Body: runs}, nil
	})
}

func getSession(ctx context.Context, store DataStore, sessionID string) (*domain.Session, error) {
	session, err := store.Sessions().GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, huma.Error404NotFound("session not found")
		}
		return nil, huma.Error500InternalServerError("failed to get session", err)
	}
	return session, nil
}
