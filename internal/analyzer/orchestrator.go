// Package analyzer drives per-chunk model calls and merges their structured
// extractions into one document-level result.
package analyzer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/ai"
	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// attemptState is the explicit per-chunk retry state machine:
// attemptingPrimary → attemptingFallback → failed.
type attemptState int

const (
	attemptingPrimary attemptState = iota
	attemptingFallback
	failed
)

// Orchestrator fans chunks out to the model client with per-chunk retry and
// fallback. Chunks have no data dependency on each other; calls run
// concurrently up to the worker limit.
type Orchestrator struct {
	client      domain.ModelClient
	workers     int
	temperature float64
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator with the given concurrency limit.
func NewOrchestrator(client domain.ModelClient, workers int, temperature float64, logger *zap.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		client:      client,
		workers:     workers,
		temperature: temperature,
		logger:      logger,
	}
}

// chunkResult carries one chunk's outcome with its index so concurrent
// completion order never affects the merged output.
type chunkResult struct {
	extraction *domain.ChunkExtraction
	err        error
}

// Analyze processes every chunk independently and returns the surviving
// extractions in chunk-index order, plus the total tokens consumed by
// successful calls. A chunk that fails all attempts contributes nothing.
// Only when every chunk fails does the run fail, with
// domain.ErrNoChunksAnalyzed.
func (o *Orchestrator) Analyze(ctx context.Context, chunks []domain.Chunk, documentType, primaryModel, fallbackModel string) ([]domain.ChunkExtraction, int, error) {
	if len(chunks) == 0 {
		return nil, 0, errors.Wrap(domain.ErrNoChunksAnalyzed, "no chunks to analyze")
	}

	results := make([]chunkResult, len(chunks))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk domain.Chunk) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			extraction, err := o.analyzeChunk(ctx, chunk, documentType, len(chunks), primaryModel, fallbackModel)
			results[i] = chunkResult{extraction: extraction, err: err}
		}(i, chunk)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var extractions []domain.ChunkExtraction
	totalTokens := 0
	for i, res := range results {
		if res.err != nil {
			o.logger.Warn("chunk skipped after all attempts failed",
				zap.Int("chunk_index", chunks[i].Index),
				zap.Error(res.err),
			)
			continue
		}
		extractions = append(extractions, *res.extraction)
		totalTokens += res.extraction.TokensUsed
	}

	if len(extractions) == 0 {
		return nil, 0, errors.Wrapf(domain.ErrNoChunksAnalyzed, "%d chunks attempted", len(chunks))
	}

	o.logger.Info("chunk analysis finished",
		zap.Int("chunks", len(chunks)),
		zap.Int("succeeded", len(extractions)),
		zap.Int("tokens_used", totalTokens),
	)

	return extractions, totalTokens, nil
}

// analyzeChunk runs the attempt state machine for one chunk. Only provider
// errors advance the machine; cancellation and other errors abort
// immediately.
func (o *Orchestrator) analyzeChunk(ctx context.Context, chunk domain.Chunk, documentType string, totalChunks int, primaryModel, fallbackModel string) (*domain.ChunkExtraction, error) {
	prompt := ai.BuildChunkPrompt(chunk.Text, documentType, chunk.Index, totalChunks)

	state := attemptingPrimary
	var lastErr error

	for state != failed {
		model := primaryModel
		if state == attemptingFallback {
			model = fallbackModel
		}

		comp, err := o.client.Complete(ctx, prompt, model, o.temperature)
		if err == nil {
			extraction := decodeExtraction(comp.Output)
			extraction.TokensUsed = comp.TokensUsed
			return extraction, nil
		}
		if !errors.Is(err, domain.ErrProvider) {
			return nil, err
		}

		lastErr = err
		o.logger.Warn("model attempt failed",
			zap.Int("chunk_index", chunk.Index),
			zap.String("model", model),
			zap.Error(err),
		)

		switch state {
		case attemptingPrimary:
			if fallbackModel != "" && fallbackModel != primaryModel {
				state = attemptingFallback
			} else {
				state = failed
			}
		case attemptingFallback:
			state = failed
		}
	}

	return nil, lastErr
}

// decodeExtraction turns a model output into a chunk extraction. A raw
// (non-JSON) output contributes no structured facts; its text is kept as the
// chunk summary. Structured outputs that fail to unmarshal are treated the
// same way.
func decodeExtraction(output domain.ModelOutput) *domain.ChunkExtraction {
	if raw, ok := output.RawText(); ok {
		return &domain.ChunkExtraction{Summary: raw}
	}

	structured, _ := output.Structured()
	var extraction domain.ChunkExtraction
	if err := json.Unmarshal(structured, &extraction); err != nil {
		return &domain.ChunkExtraction{Summary: string(structured)}
	}
	return &extraction
}
