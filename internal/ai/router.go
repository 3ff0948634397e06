package ai

import (
	"context"
	"strings"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// Router dispatches completions to the provider that serves the requested
// model: gpt-* and o1-* go to the OpenAI-style client, claude-* to the
// Anthropic-style client, anything else defaults to OpenAI.
type Router struct {
	openai    domain.ModelClient
	anthropic domain.ModelClient
}

// NewRouter builds a router over the two provider clients. anthropic may be
// nil, in which case claude-* models fall through to the OpenAI client.
func NewRouter(openai, anthropic domain.ModelClient) *Router {
	return &Router{openai: openai, anthropic: anthropic}
}

// Complete implements domain.ModelClient.
func (r *Router) Complete(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return r.clientFor(model).Complete(ctx, prompt, model, temperature)
}

// CompleteText implements domain.ModelClient.
func (r *Router) CompleteText(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return r.clientFor(model).CompleteText(ctx, prompt, model, temperature)
}

func (r *Router) clientFor(model string) domain.ModelClient {
	if strings.HasPrefix(model, "claude-") && r.anthropic != nil {
		return r.anthropic
	}
	return r.openai
}
