package backends_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/chorus/internal/agent"
	"github.com/gosuda/chorus/internal/agent/backends"
	"github.com/gosuda/chorus/internal/domain"
)

func writerRequest() agent.TurnRequest {
	researcherID, writerID := int64(1), int64(2)
	return agent.TurnRequest{
		Agent:          &domain.AgentProfile{ID: writerID, Name: "writer", Role: "Writer", Description: "Writes prose."},
		PromptOverride: "Keep it short.",
		Conversation: []*domain.Message{
			{ID: 1, Role: domain.RoleUser, Content: "summarize X"},
			{ID: 2, Role: domain.RoleAgent, AgentID: &researcherID, AgentName: "researcher", Content: "X is a thing."},
			{ID: 3, Role: domain.RoleAgent, AgentID: &writerID, AgentName: "writer", Content: "Earlier draft."},
			{ID: 4, Role: domain.RoleUser, Content: "again"},
		},
	}
}

// capture decodes the request body of a single call into v.
func capture(t *testing.T, path string, v any, response string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, path) {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return srv
}

type chatBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"messages"`
	MaxCompletionTokens int `json:"max_completion_tokens"`
}

// ---------------------------------------------------------------------------
// OpenAI
// ---------------------------------------------------------------------------

func TestOpenAIProducer_ProduceTurn(t *testing.T) {
	t.Parallel()

	var body chatBody
	srv := capture(t, "/chat/completions", &body, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Final draft."}}],
		"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
	}`)

	p, err := backends.NewOpenAIProducer(agent.Options{APIKey: "test", BaseURL: srv.URL + "/", MaxTokens: 256})
	require.NoError(t, err)

	res, err := p.ProduceTurn(context.Background(), writerRequest())
	require.NoError(t, err)

	assert.Equal(t, "Final draft.", res.Content)
	assert.Equal(t, 42, *res.TokensPrompt)
	assert.Equal(t, 7, *res.TokensCompletion)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.True(t, res.PromptOverrideUsed)

	assert.Equal(t, "gpt-4o-mini", body.Model)
	assert.Equal(t, 256, body.MaxCompletionTokens)
	require.Len(t, body.Messages, 5)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Contains(t, body.Messages[0].Content, "Keep it short.")
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "user", body.Messages[2].Role)
	assert.Equal(t, "[researcher] X is a thing.", body.Messages[2].Content)
	assert.Equal(t, "assistant", body.Messages[3].Role)
	assert.Equal(t, "user", body.Messages[4].Role)
}

func TestOpenAIProducer_ModelHintWins(t *testing.T) {
	t.Parallel()

	var body chatBody
	srv := capture(t, "/chat/completions", &body, `{
		"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`)

	p, err := backends.NewOpenAIProducer(agent.Options{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := writerRequest()
	req.Agent.ModelHint = "gpt-4o"
	res, err := p.ProduceTurn(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", body.Model)
	assert.Equal(t, "gpt-4o", res.Model)
}

func TestOpenAIProducer_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()

		_, err := backends.NewOpenAIProducer(agent.Options{})
		require.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		p, err := backends.NewOpenAIProducer(agent.Options{APIKey: "test", BaseURL: srv.URL + "/"})
		require.NoError(t, err)

		res, err := p.ProduceTurn(context.Background(), writerRequest())
		require.Error(t, err)
		assert.Nil(t, res)
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()

		var body chatBody
		srv := capture(t, "/chat/completions", &body, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`)

		p, err := backends.NewOpenAIProducer(agent.Options{APIKey: "test", BaseURL: srv.URL + "/"})
		require.NoError(t, err)

		_, err = p.ProduceTurn(context.Background(), writerRequest())
		require.ErrorContains(t, err, "no choices")
	})
}

// ---------------------------------------------------------------------------
// Anthropic
// ---------------------------------------------------------------------------

type messagesBody struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

func TestAnthropicProducer_ProduceTurn(t *testing.T) {
	t.Parallel()

	var body messagesBody
	srv := capture(t, "/v1/messages", &body, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": [{"type": "text", "text": "Final "}, {"type": "text", "text": "draft."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 30, "output_tokens": 5}
	}`)

	p, err := backends.NewAnthropicProducer(agent.Options{APIKey: "test", BaseURL: srv.URL + "/", Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)

	res, err := p.ProduceTurn(context.Background(), writerRequest())
	require.NoError(t, err)

	assert.Equal(t, "Final draft.", res.Content)
	assert.Equal(t, 30, *res.TokensPrompt)
	assert.Equal(t, 5, *res.TokensCompletion)
	assert.Equal(t, "claude-3-5-haiku-latest", res.Model)

	assert.Equal(t, "claude-3-5-haiku-latest", body.Model)
	assert.Equal(t, 1024, body.MaxTokens)
	require.Len(t, body.System, 1)
	assert.Contains(t, body.System[0].Text, "Writes prose.")
	require.Len(t, body.Messages, 4)
	assert.Equal(t, "assistant", body.Messages[2].Role)
	assert.Equal(t, "user", body.Messages[3].Role)
}

func TestAnthropicProducer_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := backends.NewAnthropicProducer(agent.Options{})
	require.Error(t, err)
}
