package domain

import "time"

// DocumentStatus represents the processing lifecycle of a document.
type DocumentStatus string

const (
	StatusUploaded       DocumentStatus = "uploaded"
	StatusParsing        DocumentStatus = "parsing"
	StatusWaitingInQueue DocumentStatus = "waiting_in_queue"
	StatusProcessing     DocumentStatus = "processing"
	StatusBuildingReport DocumentStatus = "building_report"
	StatusCompleted      DocumentStatus = "completed"
	StatusFailed         DocumentStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document type constants. Types with configured standard clauses get
// missing-clause detection; others yield an empty missing list.
const (
	DocTypeContract   = "contract"
	DocTypeNDA        = "nda"
	DocTypeEmployment = "employment"
	DocTypeLease      = "lease"
	DocTypeOther      = "other"
)

// Document represents an uploaded legal document and its processing state.
type Document struct {
	ID           string         `json:"id" reindex:"id,,pk"`
	UserID       string         `json:"user_id" reindex:"user_id"`
	Name         string         `json:"name" reindex:"name"`
	FileKey      string         `json:"file_key" reindex:"file_key"`
	FileType     string         `json:"file_type" reindex:"file_type"`
	FileSize     int64          `json:"file_size"`
	DocumentType string         `json:"document_type" reindex:"document_type"`
	Status       DocumentStatus `json:"status" reindex:"status"`
	RiskScore    *int           `json:"risk_score,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	UploadedAt time.Time `json:"uploaded_at" reindex:"uploaded_at"`
	CreatedAt  time.Time `json:"created_at" reindex:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// ProcessingStartedAt is set the first time status becomes processing
	// and never overwritten. ProcessingCompletedAt is set iff status is
	// completed or failed.
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
}

// Chunk is a token-bounded contiguous slice of document text, with overlap
// context carried over from its predecessor.
type Chunk struct {
	Index      int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Party is a party involved in the document.
type Party struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Contact string `json:"contact,omitempty"`
}

// DateItem is an important date found in the document.
type DateItem struct {
	Type        string `json:"type"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
}

// FinancialTerm is a monetary term extracted from the document.
type FinancialTerm struct {
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Frequency string  `json:"frequency,omitempty"`
}

// Obligation is a duty one party owes under the document.
type Obligation struct {
	Party      string `json:"party"`
	Obligation string `json:"obligation"`
	Deadline   string `json:"deadline,omitempty"`
}

// Risk severity levels. Unknown severities weigh the same as low.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// RiskItem is a risk the model identified in the document.
type RiskItem struct {
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
	PageReference  *int   `json:"page_reference,omitempty"`
	ClauseName     string `json:"clause_name,omitempty"`
}

// ChunkExtraction is the structured output the model produced for one chunk.
// It is created by a single orchestrator call, consumed once by the
// aggregator, and then discarded.
type ChunkExtraction struct {
	Parties        []Party         `json:"parties"`
	Dates          []DateItem      `json:"dates"`
	FinancialTerms []FinancialTerm `json:"financial_terms"`
	Obligations    []Obligation    `json:"obligations"`
	Risks          []RiskItem      `json:"risks"`
	MissingClauses []string        `json:"missing_clauses"`
	UnusualTerms   []string        `json:"unusual_terms"`
	Summary        string          `json:"summary,omitempty"`
	TokensUsed     int             `json:"-"`
}

// AggregatedExtraction is the document-scoped union of all chunk extractions
// with duplicates removed. Never mutated after the aggregator returns it.
type AggregatedExtraction struct {
	Parties        []Party
	Dates          []DateItem
	FinancialTerms []FinancialTerm
	Obligations    []Obligation
	Risks          []RiskItem
	MissingClauses []string
	UnusualTerms   []string
}

// AnalysisResult is the final document-level analysis emitted to report and
// rendering collaborators.
type AnalysisResult struct {
	AnalysisID   string `json:"analysis_id" reindex:"analysis_id,,pk"`
	DocumentID   string `json:"document_id" reindex:"document_id"`
	UserID       string `json:"user_id" reindex:"user_id"`
	DocumentType string `json:"document_type"`

	Summary        string          `json:"summary"`
	Parties        []Party         `json:"parties"`
	Dates          []DateItem      `json:"dates"`
	FinancialTerms []FinancialTerm `json:"financial_terms"`
	Obligations    []Obligation    `json:"obligations"`
	Risks          []RiskItem      `json:"risks"`
	MissingClauses []string        `json:"missing_clauses"`
	UnusualTerms   []string        `json:"unusual_terms"`

	RiskScore             int       `json:"risk_score"`
	AIModelUsed           string    `json:"ai_model_used"`
	TokensUsed            int       `json:"tokens_used"`
	ProcessingTimeSeconds int       `json:"processing_time_seconds"`
	CostEstimate          float64   `json:"cost_estimate"`
	CreatedAt             time.Time `json:"created_at"`
}
