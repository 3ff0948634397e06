package analyzer

import (
	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// Merge folds chunk extractions into one document-level extraction. Duplicate
// parties, dates, risks, missing clauses and unusual terms are dropped, first
// occurrence wins in input order. Financial terms and obligations are
// concatenated without dedup: different clauses legitimately restate different
// amounts and duties, while parties, dates and risks are document-global facts
// that repeat across overlapping chunk windows.
func Merge(extractions []domain.ChunkExtraction) *domain.AggregatedExtraction {
	agg := &domain.AggregatedExtraction{}

	seenParties := make(map[[2]string]struct{})
	seenDates := make(map[[2]string]struct{})
	seenRisks := make(map[string]struct{})
	seenClauses := make(map[string]struct{})
	seenTerms := make(map[string]struct{})

	for _, ext := range extractions {
		for _, p := range ext.Parties {
			key := [2]string{p.Name, p.Role}
			if _, ok := seenParties[key]; ok {
				continue
			}
			seenParties[key] = struct{}{}
			agg.Parties = append(agg.Parties, p)
		}

		for _, d := range ext.Dates {
			key := [2]string{d.Type, d.Date}
			if _, ok := seenDates[key]; ok {
				continue
			}
			seenDates[key] = struct{}{}
			agg.Dates = append(agg.Dates, d)
		}

		agg.FinancialTerms = append(agg.FinancialTerms, ext.FinancialTerms...)
		agg.Obligations = append(agg.Obligations, ext.Obligations...)

		for _, r := range ext.Risks {
			if _, ok := seenRisks[r.Title]; ok {
				continue
			}
			seenRisks[r.Title] = struct{}{}
			agg.Risks = append(agg.Risks, r)
		}

		for _, c := range ext.MissingClauses {
			key := domain.NormalizeClauseName(c)
			if _, ok := seenClauses[key]; ok {
				continue
			}
			seenClauses[key] = struct{}{}
			agg.MissingClauses = append(agg.MissingClauses, c)
		}

		for _, t := range ext.UnusualTerms {
			if _, ok := seenTerms[t]; ok {
				continue
			}
			seenTerms[t] = struct{}{}
			agg.UnusualTerms = append(agg.UnusualTerms, t)
		}
	}

	return agg
}
