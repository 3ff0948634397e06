package analyzer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// scriptedClient routes each call through a user-supplied function and
// records the models it was asked for, per prompt substring.
type scriptedClient struct {
	mu    sync.Mutex
	calls []scriptedCall
	fn    func(prompt, model string) (*domain.Completion, error)
}

type scriptedCall struct {
	prompt string
	model  string
	prose  bool
}

func (c *scriptedClient) Complete(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.record(ctx, prompt, model, false)
}

func (c *scriptedClient) CompleteText(ctx context.Context, prompt, model string, temperature float64) (*domain.Completion, error) {
	return c.record(ctx, prompt, model, true)
}

func (c *scriptedClient) record(ctx context.Context, prompt, model string, prose bool) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, scriptedCall{prompt: prompt, model: model, prose: prose})
	c.mu.Unlock()
	return c.fn(prompt, model)
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func structuredCompletion(t *testing.T, ext domain.ChunkExtraction, tokens int) *domain.Completion {
	t.Helper()
	data, err := json.Marshal(ext)
	require.NoError(t, err)
	return &domain.Completion{Output: domain.StructuredOutput(data), TokensUsed: tokens}
}

func testChunks(texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text, TokenCount: len(strings.Fields(text))}
	}
	return chunks
}

func TestAnalyzeSkipsChunkThatFailsAllModels(t *testing.T) {
	providerDown := errors.Mark(errors.New("rate limited"), domain.ErrProvider)

	client := &scriptedClient{}
	client.fn = func(prompt, model string) (*domain.Completion, error) {
		if strings.Contains(prompt, "CHUNK-B") {
			return nil, providerDown
		}
		return structuredCompletion(t, domain.ChunkExtraction{
			Summary: "ok",
			Risks:   []domain.RiskItem{{Severity: domain.SeverityLow, Title: "minor"}},
		}, 100), nil
	}

	o := NewOrchestrator(client, 2, 0.1, zaptest.NewLogger(t))
	extractions, tokens, err := o.Analyze(context.Background(), testChunks("CHUNK-A", "CHUNK-B", "CHUNK-C"), domain.DocTypeContract, "gpt-4o", "claude-3-sonnet")

	require.NoError(t, err)
	assert.Len(t, extractions, 2)
	assert.Equal(t, 200, tokens, "failed chunk must not contribute tokens")

	// chunk B burned both the primary and the fallback attempt
	assert.Equal(t, 4, client.callCount())
}

func TestAnalyzeAllChunksFailed(t *testing.T) {
	providerDown := errors.Mark(errors.New("connection refused"), domain.ErrProvider)
	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		return nil, providerDown
	}}

	o := NewOrchestrator(client, 4, 0.1, zaptest.NewLogger(t))
	_, _, err := o.Analyze(context.Background(), testChunks("a", "b"), domain.DocTypeNDA, "gpt-4o", "claude-3-sonnet")

	assert.ErrorIs(t, err, domain.ErrNoChunksAnalyzed)
}

func TestAnalyzeFallbackModelRecovers(t *testing.T) {
	providerDown := errors.Mark(errors.New("503"), domain.ErrProvider)
	client := &scriptedClient{}
	client.fn = func(prompt, model string) (*domain.Completion, error) {
		if model == "gpt-4o" {
			return nil, providerDown
		}
		return structuredCompletion(t, domain.ChunkExtraction{Summary: "rescued"}, 42), nil
	}

	o := NewOrchestrator(client, 1, 0.1, zaptest.NewLogger(t))
	extractions, tokens, err := o.Analyze(context.Background(), testChunks("only chunk"), domain.DocTypeContract, "gpt-4o", "claude-3-sonnet")

	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, "rescued", extractions[0].Summary)
	assert.Equal(t, 42, tokens)

	require.Equal(t, 2, client.callCount())
	assert.Equal(t, "gpt-4o", client.calls[0].model)
	assert.Equal(t, "claude-3-sonnet", client.calls[1].model)
}

func TestAnalyzeNoFallbackWhenSameModel(t *testing.T) {
	providerDown := errors.Mark(errors.New("503"), domain.ErrProvider)
	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		return nil, providerDown
	}}

	o := NewOrchestrator(client, 1, 0.1, zaptest.NewLogger(t))
	_, _, err := o.Analyze(context.Background(), testChunks("x"), domain.DocTypeContract, "gpt-4o", "gpt-4o")

	assert.ErrorIs(t, err, domain.ErrNoChunksAnalyzed)
	assert.Equal(t, 1, client.callCount(), "identical fallback model must not be retried")
}

func TestAnalyzeCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		t.Fatal("client must not be called after cancellation")
		return nil, nil
	}}

	o := NewOrchestrator(client, 2, 0.1, zaptest.NewLogger(t))
	_, _, err := o.Analyze(ctx, testChunks("a", "b"), domain.DocTypeContract, "gpt-4o", "")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeResultsOrderedByChunkIndex(t *testing.T) {
	client := &scriptedClient{}
	client.fn = func(prompt, model string) (*domain.Completion, error) {
		for _, tag := range []string{"FIRST", "SECOND", "THIRD", "FOURTH"} {
			if strings.Contains(prompt, tag) {
				return structuredCompletion(t, domain.ChunkExtraction{Summary: tag}, 1), nil
			}
		}
		return nil, errors.New("unknown chunk")
	}

	o := NewOrchestrator(client, 4, 0.1, zaptest.NewLogger(t))
	extractions, _, err := o.Analyze(context.Background(), testChunks("FIRST", "SECOND", "THIRD", "FOURTH"), domain.DocTypeLease, "gpt-4o", "")

	require.NoError(t, err)
	require.Len(t, extractions, 4)
	for i, want := range []string{"FIRST", "SECOND", "THIRD", "FOURTH"} {
		assert.Equal(t, want, extractions[i].Summary)
	}
}

func TestAnalyzeRawOutputKeptAsSummary(t *testing.T) {
	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		return &domain.Completion{Output: domain.RawOutput("the model rambled instead of emitting JSON"), TokensUsed: 7}, nil
	}}

	o := NewOrchestrator(client, 1, 0.1, zaptest.NewLogger(t))
	extractions, tokens, err := o.Analyze(context.Background(), testChunks("x"), domain.DocTypeOther, "gpt-4o", "")

	require.NoError(t, err)
	require.Len(t, extractions, 1)
	assert.Equal(t, "the model rambled instead of emitting JSON", extractions[0].Summary)
	assert.Empty(t, extractions[0].Risks)
	assert.Equal(t, 7, tokens)
}
