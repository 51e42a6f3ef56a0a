package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gosuda/chorus/internal/agent"
)

const (
	openAIDefaultModel     = openai.ChatModelGPT4oMini
	openAIDefaultMaxTokens = 1024
)

// OpenAIProducer produces turns with the OpenAI Chat Completions API.
type OpenAIProducer struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAIProducer(opts agent.Options) (agent.Producer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("backends.NewOpenAIProducer: api key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL), option.WithMaxRetries(0))
	}

	p := &OpenAIProducer{
		client:    openai.NewClient(clientOpts...),
		model:     opts.Model,
		maxTokens: int64(opts.MaxTokens),
	}
	if p.model == "" {
		p.model = string(openAIDefaultModel)
	}
	if p.maxTokens <= 0 {
		p.maxTokens = openAIDefaultMaxTokens
	}

	return p, nil
}

func (p *OpenAIProducer) ProduceTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	start := time.Now()
	model := agent.ModelFor(req.Agent, p.model)

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(agent.SystemPrompt(req))}
	for _, t := range transcript(req.Conversation, req.Agent) {
		if t.assistant {
			messages = append(messages, openai.AssistantMessage(t.text))
		} else {
			messages = append(messages, openai.UserMessage(t.text))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(p.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("backends.OpenAIProducer.ProduceTurn: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("backends.OpenAIProducer.ProduceTurn: no choices returned")
	}

	prompt := int(resp.Usage.PromptTokens)
	completion := int(resp.Usage.CompletionTokens)

	return &agent.TurnResult{
		Content:            resp.Choices[0].Message.Content,
		TokensPrompt:       &prompt,
		TokensCompletion:   &completion,
		LatencyMS:          int(time.Since(start).Milliseconds()),
		Model:              model,
		PromptOverrideUsed: req.PromptOverride != "",
	}, nil
}
