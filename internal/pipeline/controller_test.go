package pipeline

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Yoav-S/legal-analyzer-backend/internal/analyzer"
	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
	"github.com/Yoav-S/legal-analyzer-backend/internal/risk"
)

// MockDocumentStore is a mock implementation of domain.DocumentStore
type MockDocumentStore struct {
	mock.Mock
}

var _ domain.DocumentStore = (*MockDocumentStore)(nil)

func (m *MockDocumentStore) GetByID(ctx context.Context, id, userID string) (*domain.Document, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errorMessage string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

func (m *MockDocumentStore) BeginProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentStore) SetRiskScore(ctx context.Context, id string, score int) error {
	args := m.Called(ctx, id, score)
	return args.Error(0)
}

func (m *MockDocumentStore) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// MockBlobStore is a mock implementation of domain.BlobStore
type MockBlobStore struct {
	mock.Mock
}

var _ domain.BlobStore = (*MockBlobStore)(nil)

func (m *MockBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockExtractor is a mock implementation of domain.TextExtractor
type MockExtractor struct {
	mock.Mock
}

var _ domain.TextExtractor = (*MockExtractor)(nil)

func (m *MockExtractor) Extract(fileBytes []byte, fileType string) (string, error) {
	args := m.Called(fileBytes, fileType)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of domain.NotificationSender
type MockNotifier struct {
	mock.Mock
}

var _ domain.NotificationSender = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyAnalysisComplete(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	args := m.Called(ctx, userID, documentID, documentName, riskScore)
	return args.Error(0)
}

func (m *MockNotifier) NotifyHighRisk(ctx context.Context, userID, documentID, documentName string, riskScore int) error {
	args := m.Called(ctx, userID, documentID, documentName, riskScore)
	return args.Error(0)
}

// MockChunker is a mock implementation of Chunker
type MockChunker struct {
	mock.Mock
}

func (m *MockChunker) Split(text string) ([]domain.Chunk, error) {
	args := m.Called(text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chunk), args.Error(1)
}

// MockOrchestrator is a mock implementation of Orchestrator
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Analyze(ctx context.Context, chunks []domain.Chunk, documentType, primaryModel, fallbackModel string) ([]domain.ChunkExtraction, int, error) {
	args := m.Called(ctx, chunks, documentType, primaryModel, fallbackModel)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ChunkExtraction), args.Int(1), args.Error(2)
}

// MockSummarizer is a mock implementation of Summarizer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, agg *domain.AggregatedExtraction, documentType string) (string, int) {
	args := m.Called(ctx, agg, documentType)
	return args.String(0), args.Int(1)
}

type testDeps struct {
	store        *MockDocumentStore
	blobs        *MockBlobStore
	extractor    *MockExtractor
	chunker      *MockChunker
	orchestrator *MockOrchestrator
	summarizer   *MockSummarizer
	notifier     *MockNotifier
}

func newController(t *testing.T, cfg Config) (*Controller, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:        new(MockDocumentStore),
		blobs:        new(MockBlobStore),
		extractor:    new(MockExtractor),
		chunker:      new(MockChunker),
		orchestrator: new(MockOrchestrator),
		summarizer:   new(MockSummarizer),
		notifier:     new(MockNotifier),
	}
	c := NewController(
		deps.store, deps.blobs, deps.extractor, deps.chunker,
		deps.orchestrator, deps.summarizer, analyzer.Merge, risk.NewEngine(),
		deps.notifier, cfg, zaptest.NewLogger(t),
	)
	return c, deps
}

func testDocument() *domain.Document {
	return &domain.Document{
		ID:           "doc-1",
		UserID:       "user-1",
		Name:         "service-agreement.txt",
		FileKey:      "uploads/user-1/doc-1.txt",
		FileType:     "txt",
		DocumentType: domain.DocTypeContract,
		Status:       domain.StatusWaitingInQueue,
	}
}

func TestRunCompletesAndPersistsAnalysis(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "gpt-4o", FallbackModel: "claude-3-sonnet"})
	ctx := context.Background()
	doc := testDocument()

	chunks := []domain.Chunk{{Index: 0, Text: "chunk text", TokenCount: 2}}
	extractions := []domain.ChunkExtraction{{
		Parties: []domain.Party{{Name: "Acme", Role: "vendor"}},
		Risks: []domain.RiskItem{
			{Severity: domain.SeverityLow, Title: "Auto-renewal", ClauseName: "Termination clause"},
		},
		TokensUsed: 900,
	}}

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(nil)
	deps.blobs.On("Download", ctx, doc.FileKey).Return([]byte("raw bytes"), nil)
	deps.extractor.On("Extract", []byte("raw bytes"), "txt").Return("long enough extracted text", nil)
	deps.chunker.On("Split", "long enough extracted text").Return(chunks, nil)
	deps.orchestrator.On("Analyze", ctx, chunks, domain.DocTypeContract, "gpt-4o", "claude-3-sonnet").Return(extractions, 900, nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusBuildingReport, "").Return(nil)
	deps.summarizer.On("Summarize", ctx, mock.Anything, domain.DocTypeContract).Return("executive summary", 100)

	var saved *domain.AnalysisResult
	deps.store.On("SaveAnalysis", ctx, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.AnalysisResult)
	}).Return(nil)
	deps.store.On("SetRiskScore", ctx, "doc-1", 3).Return(nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusCompleted, "").Return(nil)
	deps.notifier.On("NotifyAnalysisComplete", ctx, "user-1", "doc-1", doc.Name, 3).Return(nil)

	err := c.Run(ctx, "doc-1", "user-1")

	require.NoError(t, err)
	deps.store.AssertExpectations(t)
	deps.notifier.AssertExpectations(t)
	deps.notifier.AssertNotCalled(t, "NotifyHighRisk", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.NotNil(t, saved)
	assert.Equal(t, "doc-1", saved.DocumentID)
	assert.Equal(t, "executive summary", saved.Summary)
	assert.Equal(t, 3, saved.RiskScore)
	assert.Equal(t, 1000, saved.TokensUsed, "summary tokens included")
	assert.InDelta(t, 0.03, saved.CostEstimate, 1e-9)
	assert.Equal(t, "gpt-4o", saved.AIModelUsed)
	assert.NotEmpty(t, saved.AnalysisID)

	// the termination clause was attached to a risk, so it counts as present
	assert.NotContains(t, saved.MissingClauses, "Termination clause")
	assert.Contains(t, saved.MissingClauses, "Force majeure")
}

func TestRunSendsHighRiskAlert(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "claude-3-opus"})
	ctx := context.Background()
	doc := testDocument()
	doc.DocumentType = domain.DocTypeOther

	extractions := []domain.ChunkExtraction{{
		Risks: []domain.RiskItem{
			{Severity: domain.SeverityHigh, Title: "a"},
			{Severity: domain.SeverityHigh, Title: "b"},
		},
		TokensUsed: 2000,
	}}

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(nil)
	deps.blobs.On("Download", ctx, doc.FileKey).Return([]byte("b"), nil)
	deps.extractor.On("Extract", mock.Anything, "txt").Return("text", nil)
	deps.chunker.On("Split", "text").Return([]domain.Chunk{{Index: 0, Text: "text"}}, nil)
	deps.orchestrator.On("Analyze", ctx, mock.Anything, domain.DocTypeOther, "claude-3-opus", "").Return(extractions, 2000, nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusBuildingReport, "").Return(nil)
	deps.summarizer.On("Summarize", ctx, mock.Anything, domain.DocTypeOther).Return("summary", 0)

	var saved *domain.AnalysisResult
	deps.store.On("SaveAnalysis", ctx, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.AnalysisResult)
	}).Return(nil)
	deps.store.On("SetRiskScore", ctx, "doc-1", 10).Return(nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusCompleted, "").Return(nil)
	deps.notifier.On("NotifyAnalysisComplete", ctx, "user-1", "doc-1", doc.Name, 10).Return(nil)
	deps.notifier.On("NotifyHighRisk", ctx, "user-1", "doc-1", doc.Name, 10).Return(nil)

	require.NoError(t, c.Run(ctx, "doc-1", "user-1"))
	deps.notifier.AssertExpectations(t)

	require.NotNil(t, saved)
	assert.InDelta(t, 0.03, saved.CostEstimate, 1e-9, "claude-3 rate is 0.015 per 1k")
}

func TestRunNotificationFailureDoesNotFailRun(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "gpt-4o"})
	ctx := context.Background()
	doc := testDocument()

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(nil)
	deps.blobs.On("Download", ctx, doc.FileKey).Return([]byte("b"), nil)
	deps.extractor.On("Extract", mock.Anything, "txt").Return("text", nil)
	deps.chunker.On("Split", "text").Return([]domain.Chunk{{Index: 0, Text: "text"}}, nil)
	deps.orchestrator.On("Analyze", ctx, mock.Anything, domain.DocTypeContract, "gpt-4o", "").
		Return([]domain.ChunkExtraction{{Summary: "s"}}, 10, nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusBuildingReport, "").Return(nil)
	deps.summarizer.On("Summarize", ctx, mock.Anything, domain.DocTypeContract).Return("summary", 0)
	deps.store.On("SaveAnalysis", ctx, mock.Anything).Return(nil)
	deps.store.On("SetRiskScore", ctx, "doc-1", 0).Return(nil)
	deps.store.On("UpdateStatus", ctx, "doc-1", domain.StatusCompleted, "").Return(nil)
	deps.notifier.On("NotifyAnalysisComplete", ctx, "user-1", "doc-1", doc.Name, 0).
		Return(errors.New("smtp down"))

	assert.NoError(t, c.Run(ctx, "doc-1", "user-1"))
}

func TestRunStopsWhenAlreadyProcessing(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "gpt-4o"})
	ctx := context.Background()
	doc := testDocument()

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(domain.ErrAlreadyProcessing)

	err := c.Run(ctx, "doc-1", "user-1")

	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
	deps.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestRunExtractionFailureSkipsAnalysis(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "gpt-4o"})
	ctx := context.Background()
	doc := testDocument()

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(nil)
	deps.blobs.On("Download", ctx, doc.FileKey).Return([]byte("tiny"), nil)
	deps.extractor.On("Extract", []byte("tiny"), "txt").
		Return("", errors.Wrap(domain.ErrExtraction, "4 usable characters"))

	err := c.Run(ctx, "doc-1", "user-1")

	assert.ErrorIs(t, err, domain.ErrExtraction)
	deps.chunker.AssertNotCalled(t, "Split", mock.Anything)
	deps.orchestrator.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.store.AssertNotCalled(t, "SaveAnalysis", mock.Anything, mock.Anything)
}

func TestRunAnalysisFailureLeavesNoTerminalStatus(t *testing.T) {
	c, deps := newController(t, Config{PrimaryModel: "gpt-4o"})
	ctx := context.Background()
	doc := testDocument()

	deps.store.On("GetByID", ctx, "doc-1", "user-1").Return(doc, nil)
	deps.store.On("BeginProcessing", ctx, "doc-1").Return(nil)
	deps.blobs.On("Download", ctx, doc.FileKey).Return([]byte("b"), nil)
	deps.extractor.On("Extract", mock.Anything, "txt").Return("text", nil)
	deps.chunker.On("Split", "text").Return([]domain.Chunk{{Index: 0, Text: "text"}}, nil)
	deps.orchestrator.On("Analyze", ctx, mock.Anything, domain.DocTypeContract, "gpt-4o", "").
		Return(nil, 0, domain.ErrNoChunksAnalyzed)

	err := c.Run(ctx, "doc-1", "user-1")

	assert.ErrorIs(t, err, domain.ErrNoChunksAnalyzed)
	deps.store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, domain.StatusCompleted, mock.Anything)
	deps.store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, domain.StatusFailed, mock.Anything)
}

func TestMissingClausesUnionDeduplicates(t *testing.T) {
	c, _ := newController(t, Config{PrimaryModel: "gpt-4o"})

	agg := &domain.AggregatedExtraction{
		MissingClauses: []string{"force-majeure", "Arbitration venue"},
	}

	missing := c.missingClauses(domain.DocTypeContract, agg)

	// "force-majeure" collides with the standard "Force majeure" entry;
	// the engine's display form wins
	assert.Contains(t, missing, "Force majeure")
	assert.NotContains(t, missing, "force-majeure")
	assert.Contains(t, missing, "Arbitration venue")
	assert.Contains(t, missing, "Termination clause")
}
