package agent

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosuda/chorus/internal/domain"
)

// TurnRequest is everything a producer sees for one agent turn.
type TurnRequest struct {
	Session        *domain.Session
	Agent          *domain.AgentProfile
	PromptOverride string
	Tools          []domain.ToolDefinition
	// Conversation is the session history so far, oldest first, including
	// turns already taken in the current run.
	Conversation []*domain.Message
}

// TurnResult has the same shape for every producer so the orchestrator can
// persist it without knowing which one ran.
type TurnResult struct {
	Content            string
	TokensPrompt       *int
	TokensCompletion   *int
	LatencyMS          int
	Model              string
	PromptOverrideUsed bool
}

// Producer generates a single agent turn. Implementations must not mutate
// the request.
type Producer interface {
	ProduceTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// Options configures a producer built by a factory.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string // default model when the agent has no hint
	MaxTokens int
	Delay     time.Duration // mock only
}

// LastContent returns the content of the newest message in conv.
func LastContent(conv []*domain.Message) string {
	if len(conv) == 0 {
		return ""
	}
	return conv[len(conv)-1].Content
}

// SystemPrompt combines the agent's description, role and the assignment
// override into a system instruction.
func SystemPrompt(req TurnRequest) string {
	var b strings.Builder
	b.WriteString("You are " + req.Agent.Name)
	if req.Agent.Role != "" {
		b.WriteString(", acting as " + req.Agent.Role)
	}
	b.WriteString(".")
	if req.Agent.Description != "" {
		b.WriteString("\n\n" + req.Agent.Description)
	}
	if len(req.Tools) > 0 {
		names := make([]string, 0, len(req.Tools))
		for _, t := range req.Tools {
			names = append(names, t.Name)
		}
		b.WriteString("\n\nAvailable tools: " + strings.Join(names, ", ") + ".")
	}
	if req.PromptOverride != "" {
		b.WriteString("\n\n" + req.PromptOverride)
	}
	return b.String()
}

// ModelFor picks the agent's model hint, falling back to def.
func ModelFor(a *domain.AgentProfile, def string) string {
	if a != nil && a.ModelHint != "" {
		return a.ModelHint
	}
	return def
}

// EstimateTokens approximates a token count as a quarter of the rune count,
// capped at 2000.
func EstimateTokens(s string) int {
	return min(utf8.RuneCountInString(s)/4, maxTokenEstimate)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
