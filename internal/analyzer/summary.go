package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/ai"
	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// summaryTemperature is higher than the extraction temperature; the summary
// is prose, not structured data.
const summaryTemperature = 0.5

// Summarizer writes the executive summary for a merged extraction. A provider
// failure degrades to a deterministic template instead of failing the
// pipeline; the structured findings are already safe at that point.
type Summarizer struct {
	client domain.ModelClient
	model  string
	logger *zap.Logger
}

func NewSummarizer(client domain.ModelClient, model string, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, model: model, logger: logger}
}

// Summarize returns the summary text and the tokens the call consumed. The
// fallback template consumes zero tokens.
func (s *Summarizer) Summarize(ctx context.Context, agg *domain.AggregatedExtraction, documentType string) (string, int) {
	prompt := ai.BuildSummaryPrompt(agg, documentType)

	comp, err := s.client.CompleteText(ctx, prompt, s.model, summaryTemperature)
	if err != nil {
		s.logger.Error("summary generation failed, using fallback", zap.Error(err))
		return fallbackSummary(agg, documentType), 0
	}

	if raw, ok := comp.Output.RawText(); ok {
		return raw, comp.TokensUsed
	}
	structured, _ := comp.Output.Structured()
	return string(structured), comp.TokensUsed
}

func fallbackSummary(agg *domain.AggregatedExtraction, documentType string) string {
	highRisks := 0
	for _, r := range agg.Risks {
		if strings.EqualFold(r.Severity, domain.SeverityHigh) {
			highRisks++
		}
	}

	return fmt.Sprintf(`This %s document involves %d parties and contains %d identified risks, including %d high-severity items.

Key financial terms, dates, and obligations have been extracted and are detailed in the full analysis. %d critical risk items require immediate attention.

Please review the complete analysis report for detailed findings and recommendations.`,
		documentType, len(agg.Parties), len(agg.Risks), highRisks, highRisks)
}
