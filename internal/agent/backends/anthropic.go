package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/gosuda/chorus/internal/agent"
)

const (
	anthropicDefaultModel     = anthropic.ModelClaude3_5Sonnet20241022
	anthropicDefaultMaxTokens = 1024
)

// AnthropicProducer produces turns with the Anthropic Messages API.
type AnthropicProducer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicProducer(opts agent.Options) (agent.Producer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("backends.NewAnthropicProducer: api key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL), option.WithMaxRetries(0))
	}

	p := &AnthropicProducer{
		client:    anthropic.NewClient(clientOpts...),
		model:     opts.Model,
		maxTokens: int64(opts.MaxTokens),
	}
	if p.model == "" {
		p.model = string(anthropicDefaultModel)
	}
	if p.maxTokens <= 0 {
		p.maxTokens = anthropicDefaultMaxTokens
	}

	return p, nil
}

func (p *AnthropicProducer) ProduceTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	start := time.Now()
	model := agent.ModelFor(req.Agent, p.model)

	var messages []anthropic.MessageParam
	for _, t := range transcript(req.Conversation, req.Agent) {
		if t.assistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: agent.SystemPrompt(req)}},
	})
	if err != nil {
		return nil, fmt.Errorf("backends.AnthropicProducer.ProduceTurn: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}

	prompt := int(resp.Usage.InputTokens)
	completion := int(resp.Usage.OutputTokens)

	return &agent.TurnResult{
		Content:            b.String(),
		TokensPrompt:       &prompt,
		TokensCompletion:   &completion,
		LatencyMS:          int(time.Since(start).Milliseconds()),
		Model:              model,
		PromptOverrideUsed: req.PromptOverride != "",
	}, nil
}
