package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/chorus/internal/domain"
)

type CreateAgentInput struct {
	Body struct {
		Name        string `json:"name" minLength:"1" maxLength:"64" doc:"Unique agent name"`
		Role        string `json:"role,omitempty" maxLength:"128" doc:"Role shown to other agents"`
		Description string `json:"description,omitempty" doc:"Agent instructions"`
		ModelHint   string `json:"model_hint,omitempty" maxLength:"128" doc:"Preferred model"`
		IsActive    *bool  `json:"is_active,omitempty" doc:"Defaults to true"`
	}
}

type CreateAgentOutput struct {
	Body *domain.AgentProfile
}

type ListAgentsInput struct{}

type ListAgentsOutput struct {
	Body []*domain.AgentProfile
}

type DeleteAgentInput struct {
	ID int64 `path:"id" doc:"Agent profile id"`
}

type DeleteAgentOutput struct{}

type CreateToolInput struct {
	Body struct {
		Name        string         `json:"name" minLength:"1" maxLength:"128" doc:"Unique tool name"`
		Description string         `json:"description,omitempty" doc:"What the tool does"`
		InputSchema map[string]any `json:"schema,omitempty" doc:"JSON schema of the tool input"`
	}
}

type CreateToolOutput struct {
	Body *domain.ToolDefinition
}

type CreateAssignmentInput struct {
	SessionID string `path:"sessionID" maxLength:"64" doc:"External session id"`
	Body      struct {
		Agent          string   `json:"agent" minLength:"1" doc:"Agent name"`
		Order          int      `json:"order" doc:"Position in the turn order; ties go to the earlier assignment"`
		PromptOverride string   `json:"prompt_override,omitempty" doc:"Extra instructions for this session"`
		Tools          []string `json:"tools,omitempty" doc:"Tool names available to the agent"`
	}
}

type CreateAssignmentOutput struct {
	Body *domain.AgentAssignment
}

func RegisterAgentRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Create an agent profile",
		Tags:          []string{"Agents"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateAgentInput) (*CreateAgentOutput, error) {
		profile, err := domain.NewAgentProfile(input.Body.Name, input.Body.Role, input.Body.Description, input.Body.ModelHint)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if input.Body.IsActive != nil {
			profile.IsActive = *input.Body.IsActive
		}

		if err = store.Agents().Create(ctx, profile); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("agent name already exists")
			}
			return nil, huma.Error500InternalServerError("failed to create agent", err)
		}

		return &CreateAgentOutput{Body: profile}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agent profiles",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, _ *ListAgentsInput) (*ListAgentsOutput, error) {
		agents, err := store.Agents().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list agents", err)
		}

		return &ListAgentsOutput{Body: agents}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-agent",
		Method:        http.MethodDelete,
		Path:          "/agents/{id}",
		Summary:       "Delete an agent profile that is not assigned to any session",
		Tags:          []string{"Agents"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteAgentInput) (*DeleteAgentOutput, error) {
		if err := store.Agents().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("agent not found")
			}
			if errors.Is(err, domain.ErrProtected) {
				return nil, huma.Error409Conflict("agent is assigned to a session")
			}
			return nil, huma.Error500InternalServerError("failed to delete agent", err)
		}

		return &DeleteAgentOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tool",
		Method:        http.MethodPost,
		Path:          "/tools",
		Summary:       "Create a tool definition",
		Tags:          []string{"Agents"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateToolInput) (*CreateToolOutput, error) {
		tool := &domain.ToolDefinition{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			InputSchema: input.Body.InputSchema,
			IsActive:    true,
			CreatedAt:   time.Now().UTC(),
		}

		if err := store.Tools().Create(ctx, tool); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("tool name already exists")
			}
			return nil, huma.Error500InternalServerError("failed to create tool", err)
		}

		return &CreateToolOutput{Body: tool}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/sessions/{sessionID}/assignments",
		Summary:       "Assign an agent to a session's turn order",
		Tags:          []string{"Agents"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateAssignmentInput) (*CreateAssignmentOutput, error) {
		session, err := getSession(ctx, store, input.SessionID)
		if err != nil {
			return nil, err
		}

		profile, err := store.Agents().GetByName(ctx, input.Body.Agent)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("agent not found")
			}
			return nil, huma.Error500InternalServerError("failed to get agent", err)
		}

		tools := make([]domain.ToolDefinition, 0, len(input.Body.Tools))
		toolIDs := make([]int64, 0, len(input.Body.Tools))
		for _, name := range input.Body.Tools {
			tool, toolErr := store.Tools().GetByName(ctx, name)
			if toolErr != nil {
				if errors.Is(toolErr, domain.ErrNotFound) {
					return nil, huma.Error404NotFound("tool not found: " + name)
				}
				return nil, huma.Error500InternalServerError("failed to get tool", toolErr)
			}
			tools = append(tools, *tool)
			toolIDs = append(toolIDs, tool.ID)
		}

		assignment := &domain.AgentAssignment{
			SessionPK:      session.ID,
			Agent:          profile,
			Order:          input.Body.Order,
			PromptOverride: input.Body.PromptOverride,
			Tools:          tools,
			CreatedAt:      time.Now().UTC(),
		}
		if err = store.Assignments().Create(ctx, assignment, toolIDs); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, huma.Error409Conflict("agent is already assigned to this session")
			}
			return nil, huma.Error500InternalServerError("failed to create assignment", err)
		}

		return &CreateAssignmentOutput{Body: assignment}, nil
	})
}
