package ai

import (
	"fmt"
	"strings"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const (
	systemPrompt        = "You are a legal document analyst. Provide structured JSON responses."
	summarySystemPrompt = "You are a legal document analyst writing executive summaries."
)

// BuildChunkPrompt builds the per-chunk analysis prompt. The chunk position
// is prompt context only; it plays no part in merge ordering.
func BuildChunkPrompt(chunkText, documentType string, chunkIndex, totalChunks int) string {
	return fmt.Sprintf(`Analyze this legal document chunk (%d of %d).

Document Type: %s

Document Text:
%s

Please provide a JSON response with the following structure:
{
  "parties": [{"name": "...", "role": "...", "contact": "..."}],
  "dates": [{"type": "...", "date": "...", "description": "..."}],
  "financial_terms": [{"type": "...", "amount": 0.0, "currency": "USD", "frequency": "..."}],
  "obligations": [{"party": "...", "obligation": "...", "deadline": "..."}],
  "risks": [{"severity": "high|medium|low", "title": "...", "description": "...", "recommendation": "...", "page_reference": null}],
  "missing_clauses": ["..."],
  "unusual_terms": ["..."],
  "summary": "Brief summary of this chunk"
}

Focus on:
1. Identifying all parties and their roles
2. Extracting all dates, deadlines, and important timeframes
3. Finding financial terms (amounts, payment schedules, penalties)
4. Listing obligations for each party
5. Flagging potential risks (unusual clauses, missing protections, ambiguous language)
6. Identifying missing standard clauses for this document type
7. Noting any non-standard or unusual terms

Be thorough and accurate. If information is not present in this chunk, use empty arrays.
`, chunkIndex+1, totalChunks, documentType, chunkText)
}

// BuildSummaryPrompt builds the executive-summary prompt from the merged
// document-level extraction.
func BuildSummaryPrompt(agg *domain.AggregatedExtraction, documentType string) string {
	highRisks := 0
	for _, r := range agg.Risks {
		if strings.EqualFold(r.Severity, domain.SeverityHigh) {
			highRisks++
		}
	}

	return fmt.Sprintf(`Based on the complete analysis of this %s document, write a comprehensive 2-3 paragraph executive summary.

Key Findings:
- Parties: %d parties identified
- Dates: %d important dates
- Financial Terms: %d financial terms
- Risks: %d high-risk items

Provide a clear, professional summary that:
1. Identifies the document type and main purpose
2. Highlights key parties and their roles
3. Summarizes critical terms, dates, and obligations
4. Flags the most significant risks and concerns
5. Notes any missing standard protections

Write in clear, professional language suitable for legal professionals.
`, documentType, len(agg.Parties), len(agg.Dates), len(agg.FinancialTerms), highRisks)
}
