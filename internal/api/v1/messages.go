package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/chorus/internal/domain"
)

type ListAllMessagesInput struct {
	Limit  int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Page size"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Messages to skip"`
}

type MessagePathInput struct {
	ID int64 `path:"messageID" minimum:"1" doc:"Message id"`
}

type GetMessageOutput struct {
	Body *domain.Message
}

// RegisterMessageRoutes exposes read-only access to messages across sessions.
// Messages are only written by a collaboration run.
func RegisterMessageRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/messages",
		Summary:     "List messages of all sessions in history order",
		Tags:        []string{"Messages"},
	}, func(ctx context.Context, input *ListAllMessagesInput) (*ListMessagesOutput, error) {
		messages, err := store.Messages().List(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list messages", err)
		}

		return &ListMessagesOutput{Body: messages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-message",
		Method:      http.MethodGet,
		Path:        "/messages/{messageID}",
		Summary:     "Get a message",
		Tags:        []string{"Messages"},
	}, func(ctx context.Context, input *MessagePathInput) (*GetMessageOutput, error) {
		message, err := store.Messages().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("message not found")
			}
			return nil, huma.Error500InternalServerError("failed to get message", err)
		}

		return &GetMessageOutput{Body: message}, nil
	})
}
