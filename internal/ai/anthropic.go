package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to an Anthropic-style messages endpoint.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewAnthropicClient creates a client for the given endpoint.
func NewAnthropicClient(baseURL, apiKey string, maxTokens int, limiter *rate.Limiter, logger *zap.Logger) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{
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

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements domain.ModelClient. Token usage is the sum of input and
// output tokens, matching how the pipeline accounts for OpenAI totals.
func (c *AnthropicClient) Complete(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.complete(ctx, prompt, model, temperature, false)
}

// CompleteText implements domain.ModelClient. The messages endpoint has no
// response format knob; prose mode only skips the JSON-or-raw parse so a
// summary that happens to be valid JSON still comes back as text.
func (c *AnthropicClient) CompleteText(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.complete(ctx, prompt, model, temperature, true)
}

func (c *AnthropicClient) complete(ctx context.Context, prompt, model string, temperature float64, prose bool) (*domain.Completion, error) {
	if c.apiKey == "" {
		return nil, errors.Mark(errors.New("anthropic API key not configured"), domain.ErrProvider)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := anthropicRequest{
		Model:       model,
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Mark(errors.Wrap(err, "anthropic request"), domain.ErrProvider)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		c.logger.Warn("anthropic returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model),
			zap.ByteString("body", b),
		)
		return nil, errors.Mark(errors.Newf("anthropic: status %d", resp.StatusCode), domain.ErrProvider)
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode anthropic response"), domain.ErrProvider)
	}
	if len(result.Content) == 0 {
		return nil, errors.Mark(errors.New("anthropic: empty content"), domain.ErrProvider)
	}

	output := parseOutput(result.Content[0].Text)
	if prose {
		output = domain.RawOutput(result.Content[0].Text)
	}
	return &domain.Completion{
		Output:     output,
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		Model:      model,
	}, nil
}

var _ domain.ModelClient = (*AnthropicClient)(nil)
