// Package pipeline sequences a full document analysis run: load, admit,
// download, extract, chunk, analyze, aggregate, score, persist.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
	"github.com/Yoav-S/legal-analyzer-backend/internal/risk"
)

// Per-1k-token cost estimates by model family. Rough numbers for billing
// previews, not invoicing.
const (
	costPer1kGPT4   = 0.03
	costPer1kClaude = 0.015
)

// highRiskThreshold is the score at or above which the high-risk alert fires.
const highRiskThreshold = 7

// Chunker splits extracted text into token-bounded chunks.
type Chunker interface {
	Split(text string) ([]domain.Chunk, error)
}

// Orchestrator runs the per-chunk model analysis.
type Orchestrator interface {
	Analyze(ctx context.Context, chunks []domain.Chunk, documentType, primaryModel, fallbackModel string) ([]domain.ChunkExtraction, int, error)
}

// Summarizer produces the executive summary for a merged extraction.
type Summarizer interface {
	Summarize(ctx context.Context, agg *domain.AggregatedExtraction, documentType string) (string, int)
}

// Aggregate merges chunk extractions; injected so tests can observe inputs.
type Aggregate func(extractions []domain.ChunkExtraction) *domain.AggregatedExtraction

// Config holds the per-run model selection.
type Config struct {
	PrimaryModel  string
	FallbackModel string
}

// Controller owns one document's trip through the pipeline. It performs the
// status transitions that belong to a run (processing, building_report,
// completed); the failed transition belongs to the queue runner, which knows
// whether attempts remain.
type Controller struct {
	store        domain.DocumentStore
	blobs        domain.BlobStore
	extractor    domain.TextExtractor
	chunker      Chunker
	orchestrator Orchestrator
	summarizer   Summarizer
	merge        Aggregate
	engine       *risk.Engine
	notifier     domain.NotificationSender
	cfg          Config
	logger       *zap.Logger
}

func NewController(
	store domain.DocumentStore,
	blobs domain.BlobStore,
	extractor domain.TextExtractor,
	chunker Chunker,
	orchestrator Orchestrator,
	summarizer Summarizer,
	merge Aggregate,
	engine *risk.Engine,
	notifier domain.NotificationSender,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		store:        store,
		blobs:        blobs,
		extractor:    extractor,
		chunker:      chunker,
		orchestrator: orchestrator,
		summarizer:   summarizer,
		merge:        merge,
		engine:       engine,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run executes the pipeline for one document. On error the document is left
// in whatever non-terminal status it reached; the caller decides between
// retry and failure. ErrAlreadyProcessing means another run holds the
// document and this one must be dropped, not retried.
func (c *Controller) Run(ctx context.Context, documentID, userID string) error {
	start := time.Now()
	log := c.logger.With(zap.String("document_id", documentID))

	doc, err := c.store.GetByID(ctx, documentID, userID)
	if err != nil {
		return errors.Wrap(err, "load document")
	}

	if err := c.store.BeginProcessing(ctx, doc.ID); err != nil {
		return err
	}
	log.Info("document admitted for processing",
		zap.String("document_type", doc.DocumentType),
		zap.String("file_type", doc.FileType),
	)

	fileBytes, err := c.blobs.Download(ctx, doc.FileKey)
	if err != nil {
		return errors.Wrapf(err, "download %s", doc.FileKey)
	}

	text, err := c.extractor.Extract(fileBytes, doc.FileType)
	if err != nil {
		return err
	}
	log.Info("text extracted", zap.Int("characters", len(text)))

	chunks, err := c.chunker.Split(text)
	if err != nil {
		return errors.Wrap(err, "chunk document")
	}
	log.Info("document chunked", zap.Int("chunks", len(chunks)))

	extractions, tokensUsed, err := c.orchestrator.Analyze(ctx, chunks, doc.DocumentType, c.cfg.PrimaryModel, c.cfg.FallbackModel)
	if err != nil {
		return err
	}

	agg := c.merge(extractions)

	if err := c.store.UpdateStatus(ctx, doc.ID, domain.StatusBuildingReport, ""); err != nil {
		return errors.Wrap(err, "transition to building_report")
	}

	summary, summaryTokens := c.summarizer.Summarize(ctx, agg, doc.DocumentType)
	tokensUsed += summaryTokens

	riskScore := c.engine.Score(agg.Risks)
	prioritized := c.engine.Prioritize(agg.Risks)
	missingClauses := c.missingClauses(doc.DocumentType, agg)

	result := &domain.AnalysisResult{
		AnalysisID:   uuid.New().String(),
		DocumentID:   doc.ID,
		UserID:       doc.UserID,
		DocumentType: doc.DocumentType,

		Summary:        summary,
		Parties:        agg.Parties,
		Dates:          agg.Dates,
		FinancialTerms: agg.FinancialTerms,
		Obligations:    agg.Obligations,
		Risks:          prioritized,
		MissingClauses: missingClauses,
		UnusualTerms:   agg.UnusualTerms,

		RiskScore:             riskScore,
		AIModelUsed:           c.cfg.PrimaryModel,
		TokensUsed:            tokensUsed,
		ProcessingTimeSeconds: int(time.Since(start).Seconds()),
		CostEstimate:          estimateCost(c.cfg.PrimaryModel, tokensUsed),
		CreatedAt:             time.Now().UTC(),
	}

	if err := c.store.SaveAnalysis(ctx, result); err != nil {
		return errors.Wrap(err, "save analysis")
	}
	if err := c.store.SetRiskScore(ctx, doc.ID, riskScore); err != nil {
		return errors.Wrap(err, "set risk score")
	}
	if err := c.store.UpdateStatus(ctx, doc.ID, domain.StatusCompleted, ""); err != nil {
		return errors.Wrap(err, "transition to completed")
	}

	c.notify(ctx, doc, riskScore)

	log.Info("analysis completed",
		zap.Int("risk_score", riskScore),
		zap.Int("tokens_used", tokensUsed),
		zap.Int("processing_time_seconds", result.ProcessingTimeSeconds),
	)
	return nil
}

// missingClauses is the union of the standard clauses the engine finds absent
// and the clauses the model itself reported missing, deduplicated on the
// normalized name. Clause names attached to extracted risks count as present.
func (c *Controller) missingClauses(documentType string, agg *domain.AggregatedExtraction) []string {
	var extracted []string
	for _, r := range agg.Risks {
		if r.ClauseName != "" {
			extracted = append(extracted, r.ClauseName)
		}
	}

	missing := c.engine.MissingClauses(documentType, extracted)
	seen := make(map[string]struct{}, len(missing))
	for _, clause := range missing {
		seen[domain.NormalizeClauseName(clause)] = struct{}{}
	}
	for _, clause := range agg.MissingClauses {
		key := domain.NormalizeClauseName(clause)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		missing = append(missing, clause)
	}
	return missing
}

// notify sends completion notifications. Failures are logged and swallowed;
// the analysis is already persisted.
func (c *Controller) notify(ctx context.Context, doc *domain.Document, riskScore int) {
	if err := c.notifier.NotifyAnalysisComplete(ctx, doc.UserID, doc.ID, doc.Name, riskScore); err != nil {
		c.logger.Warn("completion notification failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	if riskScore >= highRiskThreshold {
		if err := c.notifier.NotifyHighRisk(ctx, doc.UserID, doc.ID, doc.Name, riskScore); err != nil {
			c.logger.Warn("high-risk notification failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
}

func estimateCost(model string, tokens int) float64 {
	switch {
	case strings.HasPrefix(model, "gpt-4"):
		return float64(tokens) / 1000 * costPer1kGPT4
	case strings.HasPrefix(model, "claude-3"):
		return float64(tokens) / 1000 * costPer1kClaude
	default:
		return 0
	}
}
