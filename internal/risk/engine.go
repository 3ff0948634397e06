// Package risk scores analyzed documents and checks them against
// per-document-type standard clause lists.
package risk

import (
	"sort"
	"strings"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// severityWeights maps severity to its scoring weight. Unknown severities
// weigh the same as low.
var severityWeights = map[string]int{
	domain.SeverityHigh:   3,
	domain.SeverityMedium: 2,
	domain.SeverityLow:    1,
}

// standardClauses lists the clauses expected in each document type. Presented
// names keep their display form; matching happens on the normalized form.
// Document types without an entry get no missing-clause detection.
var standardClauses = map[string][]string{
	domain.DocTypeContract: {
		"Termination clause",
		"Liability limitation",
		"Indemnification clause",
		"Dispute resolution",
		"Force majeure",
	},
	domain.DocTypeEmployment: {
		"Non-compete clause",
		"Confidentiality clause",
		"Termination terms",
		"Severance terms",
		"Intellectual property assignment",
	},
	domain.DocTypeNDA: {
		"Definition of confidential information",
		"Exclusions",
		"Term",
		"Return of materials",
	},
	domain.DocTypeLease: {
		"Security deposit terms",
		"Maintenance responsibilities",
		"Termination conditions",
		"Renewal options",
	},
}

// Engine is stateless; the zero value is ready to use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score computes the overall 0-10 risk score. The score reflects severity
// mix, not risk count: three high risks score 10, three low risks score 3.
// An empty list scores 0.
func (e *Engine) Score(risks []domain.RiskItem) int {
	if len(risks) == 0 {
		return 0
	}

	totalWeight := 0
	for _, r := range risks {
		weight, ok := severityWeights[strings.ToLower(r.Severity)]
		if !ok {
			weight = 1
		}
		totalWeight += weight
	}

	maxPossible := len(risks) * 3
	score := totalWeight * 10 / maxPossible
	if score > 10 {
		score = 10
	}
	return score
}

// MissingClauses returns the standard clauses for the document type whose
// normalized names do not appear among the extracted clause names, in the
// standard list's order.
func (e *Engine) MissingClauses(documentType string, extractedClauses []string) []string {
	standard := standardClauses[strings.ToLower(documentType)]
	if len(standard) == 0 {
		return nil
	}

	present := make(map[string]struct{}, len(extractedClauses))
	for _, c := range extractedClauses {
		present[domain.NormalizeClauseName(c)] = struct{}{}
	}

	var missing []string
	for _, clause := range standard {
		if _, ok := present[domain.NormalizeClauseName(clause)]; !ok {
			missing = append(missing, clause)
		}
	}
	return missing
}

// Prioritize returns a copy of risks sorted high → medium → low → unknown,
// stable within equal severity.
func (e *Engine) Prioritize(risks []domain.RiskItem) []domain.RiskItem {
	sorted := make([]domain.RiskItem, len(risks))
	copy(sorted, risks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})
	return sorted
}

func severityRank(severity string) int {
	switch strings.ToLower(severity) {
	case domain.SeverityHigh:
		return 0
	case domain.SeverityMedium:
		return 1
	case domain.SeverityLow:
		return 2
	default:
		return 3
	}
}

// CountBySeverity tallies risks per known severity level. Unknown severities
// are not counted.
func (e *Engine) CountBySeverity(risks []domain.RiskItem) map[string]int {
	counts := map[string]int{
		domain.SeverityHigh:   0,
		domain.SeverityMedium: 0,
		domain.SeverityLow:    0,
	}
	for _, r := range risks {
		severity := strings.ToLower(r.Severity)
		if _, ok := counts[severity]; ok {
			counts[severity]++
		}
	}
	return counts
}
