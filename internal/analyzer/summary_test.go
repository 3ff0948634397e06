package analyzer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

func TestSummarizeReturnsModelText(t *testing.T) {
	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		return &domain.Completion{Output: domain.RawOutput("This lease agreement binds two parties."), TokensUsed: 55}, nil
	}}

	s := NewSummarizer(client, "gpt-4o", zaptest.NewLogger(t))
	text, tokens := s.Summarize(context.Background(), &domain.AggregatedExtraction{}, domain.DocTypeLease)

	assert.Equal(t, "This lease agreement binds two parties.", text)
	assert.Equal(t, 55, tokens)
	assert.Equal(t, "gpt-4o", client.calls[0].model)
	assert.True(t, client.calls[0].prose, "summary must use the prose completion path")
}

func TestSummarizeFallsBackOnProviderFailure(t *testing.T) {
	client := &scriptedClient{fn: func(prompt, model string) (*domain.Completion, error) {
		return nil, errors.Mark(errors.New("timeout"), domain.ErrProvider)
	}}

	agg := &domain.AggregatedExtraction{
		Parties: []domain.Party{{Name: "A"}, {Name: "B"}},
		Risks: []domain.RiskItem{
			{Severity: domain.SeverityHigh, Title: "r1"},
			{Severity: "HIGH", Title: "r2"},
			{Severity: domain.SeverityLow, Title: "r3"},
		},
	}

	s := NewSummarizer(client, "gpt-4o", zaptest.NewLogger(t))
	text, tokens := s.Summarize(context.Background(), agg, domain.DocTypeContract)

	assert.Contains(t, text, "This contract document involves 2 parties")
	assert.Contains(t, text, "3 identified risks, including 2 high-severity items")
	assert.Zero(t, tokens, "fallback consumes no tokens")
}
