package domain

import (
	"context"
	"encoding/json"
)

// ModelClient sends a single prompt to a large-language-model provider and
// returns its output plus token usage. Complete asks for structured JSON: a
// syntactically invalid JSON body from the model is a data-quality problem,
// not a transport failure, and yields a raw ModelOutput instead of an error.
// CompleteText asks for prose (executive summaries) and always yields a raw
// ModelOutput. Implementations fail with ErrProvider on transport, auth, or
// rate-limit failures.
type ModelClient interface {
	Complete(ctx context.Context, prompt, model string, temperature float64) (*Completion, error)
	CompleteText(ctx context.Context, prompt, model string, temperature float64) (*Completion, error)
}

// Completion is the result of a single model call.
type Completion struct {
	Output     ModelOutput
	TokensUsed int
	Model      string
}

// ModelOutput is either a structured JSON value or the raw text the model
// returned when it failed to produce valid JSON. Downstream code must handle
// both cases.
type ModelOutput struct {
	structured json.RawMessage
	raw        string
	isRaw      bool
}

// StructuredOutput wraps a valid JSON value.
func StructuredOutput(data json.RawMessage) ModelOutput {
	return ModelOutput{structured: data}
}

// RawOutput wraps model text that failed JSON parsing.
func RawOutput(text string) ModelOutput {
	return ModelOutput{raw: text, isRaw: true}
}

// Structured returns the JSON value, if any.
func (o ModelOutput) Structured() (json.RawMessage, bool) {
	if o.isRaw {
		return nil, false
	}
	return o.structured, true
}

// RawText returns the unparsed model text, if any.
func (o ModelOutput) RawText() (string, bool) {
	if !o.isRaw {
		return "", false
	}
	return o.raw, true
}
