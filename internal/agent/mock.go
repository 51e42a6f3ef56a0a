package agent

import (
	"context"
	"fmt"
	"time"
)

const (
	MockModel        = "mock-model"
	DefaultMockDelay = 50 * time.Millisecond

	maxExcerpt       = 200
	maxTokenEstimate = 2000
)

// MockProducer answers with a canned line derived from the newest message.
// It needs no network and is the default producer.
type MockProducer struct {
	delay time.Duration
}

func NewMockProducer(delay time.Duration) *MockProducer {
	return &MockProducer{delay: max(delay, 0)}
}

// NewMockFactory adapts NewMockProducer to the registry.
func NewMockFactory(opts Options) (Producer, error) {
	return NewMockProducer(opts.Delay), nil
}

func (p *MockProducer) ProduceTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.Agent == nil {
		return nil, fmt.Errorf("agent.MockProducer.ProduceTurn: agent is required")
	}

	start := time.Now()
	last := LastContent(req.Conversation)

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("agent.MockProducer.ProduceTurn: %w", ctx.Err())
		case <-timer.C:
		}
	}

	content := fmt.Sprintf("%s (%s) responding to: %s", req.Agent.Name, req.Agent.Role, Truncate(last, maxExcerpt))
	prompt := EstimateTokens(last)
	completion := EstimateTokens(content)

	return &TurnResult{
		Content:            content,
		TokensPrompt:       &prompt,
		TokensCompletion:   &completion,
		LatencyMS:          int(time.Since(start).Milliseconds()),
		Model:              ModelFor(req.Agent, MockModel),
		PromptOverrideUsed: req.PromptOverride != "",
	}, nil
}
