// Package ai implements model-provider clients for the analysis pipeline.
// Clients are plain HTTP with typed request/response bodies; the only shared
// contract is domain.ModelClient.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const defaultRequestTimeout = 180 * time.Second

// parseOutput applies the provider-boundary rule: valid JSON becomes a
// structured output, anything else is wrapped as raw text instead of failing
// the call.
func parseOutput(content string) domain.ModelOutput {
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return domain.StructuredOutput(json.RawMessage(trimmed))
	}
	return domain.RawOutput(content)
}

// OpenAIClient talks to an OpenAI-style chat-completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewOpenAIClient creates a client for the given endpoint. The limiter is
// shared across all calls to the provider; nil disables throttling.
func NewOpenAIClient(baseURL, apiKey string, maxTokens int, limiter *rate.Limiter, logger *zap.Logger) *OpenAIClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int               `json:"index"`
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete implements domain.ModelClient: a structured-extraction call with
// the JSON system prompt and, for gpt-4-family models, a json_object response
// format.
func (c *OpenAIClient) Complete(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.complete(ctx, prompt, model, temperature, false)
}

// CompleteText implements domain.ModelClient: a prose call with the summary
// system prompt and no response format constraint. The output is always raw
// text, even when the model happens to emit valid JSON.
func (c *OpenAIClient) CompleteText(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.complete(ctx, prompt, model, temperature, true)
}

func (c *OpenAIClient) complete(ctx context.Context, prompt, model string, temperature float64, prose bool) (*domain.Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	system := systemPrompt
	if prose {
		system = summarySystemPrompt
	}
	req := openAIChatRequest{
		Model: model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	}
	if !prose && strings.Contains(model, "gpt-4") {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Mark(errors.Wrap(err, "openai request"), domain.ErrProvider)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.logger.Warn("openai returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model),
			zap.ByteString("body", b),
		)
		return nil, errors.Mark(errors.Newf("openai: status %d", resp.StatusCode), domain.ErrProvider)
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode openai response"), domain.ErrProvider)
	}
	if len(result.Choices) == 0 {
		return nil, errors.Mark(errors.New("openai: empty choices"), domain.ErrProvider)
	}

	output := parseOutput(result.Choices[0].Message.Content)
	if prose {
		output = domain.RawOutput(result.Choices[0].Message.Content)
	}
	return &domain.Completion{
		Output:     output,
		TokensUsed: result.Usage.TotalTokens,
		Model:      model,
	}, nil
}

var _ domain.ModelClient = (*OpenAIClient)(nil)
