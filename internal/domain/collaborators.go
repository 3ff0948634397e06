package domain

import "context"

// TextExtractor yields raw text from document bytes. PDF/DOCX/OCR extraction
// is an external capability behind this interface. Fails with ErrExtraction
// if the text is unusably short after trimming.
type TextExtractor interface {
	Extract(fileBytes []byte, fileType string) (string, error)
}

// DocumentStore persists documents and their status transitions.
type DocumentStore interface {
	// GetByID retrieves a document, optionally scoped to a user.
	GetByID(ctx context.Context, id, userID string) (*Document, error)

	// UpdateStatus transitions a document to the given status. The store
	// owns the timestamp invariants: processing_started_at is set once on
	// the first transition to processing, processing_completed_at is set
	// on terminal transitions. Completed and failed accept no further
	// transitions; attempts fail with ErrTerminalStatus.
	UpdateStatus(ctx context.Context, id string, status DocumentStatus, errorMessage string) error

	// BeginProcessing is the sole admission gate for a pipeline run: a
	// compare-and-set transition from a non-processing, non-terminal
	// status to processing. Fails with ErrAlreadyProcessing when another
	// run holds the document.
	BeginProcessing(ctx context.Context, id string) error

	// SetRiskScore records the computed risk score on the document.
	SetRiskScore(ctx context.Context, id string, score int) error

	// SaveAnalysis persists the final analysis result.
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error
}

// BlobStore provides access to uploaded document bytes.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// NotificationSender notifies users about analysis outcomes. Calls are
// fire-and-forget: failures must never fail the pipeline run.
type NotificationSender interface {
	NotifyAnalysisComplete(ctx context.Context, userID, documentID, documentName string, riskScore int) error
	NotifyHighRisk(ctx context.Context, userID, documentID, documentName string, riskScore int) error
}
