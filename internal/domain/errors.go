package domain

import "github.com/cockroachdb/errors"

// Sentinel errors for the analysis pipeline. Wrap these with errors.Wrap to
// add context while keeping errors.Is checks working.
var (
	// ErrEmptyInput means there was no text to chunk. The chunker treats
	// empty input as a hard validation error rather than silently
	// returning zero chunks.
	ErrEmptyInput = errors.New("no text to chunk")

	// ErrProvider marks transient model-provider failures (network, auth,
	// rate limits). The orchestrator retries these once against the
	// fallback model.
	ErrProvider = errors.New("model provider request failed")

	// ErrNoChunksAnalyzed means every chunk failed all attempts. Fatal for
	// the run.
	ErrNoChunksAnalyzed = errors.New("no chunks were successfully analyzed")

	// ErrExtraction means the extracted text is unusably short or empty.
	ErrExtraction = errors.New("extracted text is too short or empty")

	// ErrProcessing is the catch-all for downstream text-extraction
	// failures.
	ErrProcessing = errors.New("document processing failed")

	// ErrAlreadyProcessing means another run holds the document; the
	// compare-and-set admission gate rejected the transition.
	ErrAlreadyProcessing = errors.New("document analysis already in progress")

	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTerminalStatus means the document is completed or failed; terminal
	// statuses accept no further transitions.
	ErrTerminalStatus = errors.New("document is in a terminal status")
)

// UserMessage maps a pipeline error to the human-readable message persisted
// as the document's error_message. Raw provider and stack details are only
// logged, never surfaced.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrExtraction):
		return "The document text could not be extracted or is too short to analyze."
	case errors.Is(err, ErrNoChunksAnalyzed):
		return "The AI analysis failed for the entire document. Please try again later."
	case errors.Is(err, ErrEmptyInput):
		return "The document contains no analyzable text."
	default:
		return "Document analysis failed due to an internal error."
	}
}
