// Package tokenizer wraps a model-specific BPE tokenizer for token counting
// and overlap extraction during chunking.
package tokenizer

import (
	"github.com/cockroachdb/errors"
	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Counter counts and slices tokens using a fixed encoding. The same Counter
// must be used for budget checks and recorded chunk token counts so the two
// never disagree.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter resolves the encoding for the given model, falling back to
// cl100k_base for models tiktoken does not know about.
func NewCounter(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, errors.Wrap(err, "load fallback encoding")
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Tail returns the text decoded from the last n tokens of the input. If the
// input has n tokens or fewer it is returned unchanged.
func (c *Counter) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= n {
		return text
	}
	return c.enc.Decode(ids[len(ids)-n:])
}
