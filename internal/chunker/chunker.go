// Package chunker splits raw document text into overlapping, token-bounded
// segments for per-chunk model analysis.
package chunker

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = ". "
)

// TokenCodec is the tokenizer surface the chunker needs. Count and Tail must
// use the same encoding.
type TokenCodec interface {
	Count(text string) int
	Tail(text string, n int) string
}

// Chunker splits text on paragraph boundaries first, falling back to sentence
// boundaries for oversized paragraphs, and seeds each new chunk with trailing
// tokens from the previous unit to preserve cross-chunk context.
type Chunker struct {
	codec         TokenCodec
	maxTokens     int
	overlapTokens int
	logger        *zap.Logger
}

// New creates a chunker. maxTokens must be positive; overlapTokens of zero
// disables overlap seeding.
func New(codec TokenCodec, maxTokens, overlapTokens int, logger *zap.Logger) *Chunker {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &Chunker{
		codec:         codec,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		logger:        logger,
	}
}

// unit is one candidate piece of a chunk. sep is placed before the unit when
// it is not the first piece of its chunk; sentence units carry their own
// terminator, so their sep is empty.
type unit struct {
	text string
	sep  string
}

// Split breaks text into ordered chunks whose token counts stay within the
// budget, except for single indivisible sentences that alone exceed it; those
// are emitted whole, never dropped. Budget checks count the joined chunk text,
// separators included, so the recorded TokenCount honors the budget too. Empty
// or whitespace-only input fails with domain.ErrEmptyInput. Splitting is
// deterministic: the same text and parameters always produce the same chunks.
func (c *Chunker) Split(text string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyInput
	}

	b := &builder{chunker: c}

	for _, para := range strings.Split(text, paragraphSep) {
		if strings.TrimSpace(para) == "" {
			continue
		}

		if c.codec.Count(para) <= c.maxTokens {
			b.add(unit{text: para, sep: paragraphSep})
			continue
		}

		// Oversized paragraph: fall back to sentence boundaries.
		// SplitAfter keeps each sentence's terminator, so consecutive
		// sentences re-join to the original paragraph text.
		sep := paragraphSep
		for _, sentence := range strings.SplitAfter(para, sentenceSep) {
			if strings.TrimSpace(sentence) == "" {
				continue
			}
			if c.codec.Count(sentence) > c.maxTokens {
				// Indivisible unit larger than the budget. Emit it
				// whole rather than dropping it.
				b.flush()
				b.emit(strings.TrimSpace(sentence))
				b.seedOverlap(sentence)
				continue
			}
			b.add(unit{text: sentence, sep: sep})
			sep = ""
		}
	}

	b.flush()

	if c.logger != nil {
		c.logger.Debug("split document into chunks",
			zap.Int("chunks", len(b.chunks)),
			zap.Int("max_tokens", c.maxTokens),
		)
	}

	return b.chunks, nil
}

// builder accumulates units into the current chunk and tracks emission order.
type builder struct {
	chunker *Chunker

	chunks     []domain.Chunk
	text       string // current chunk text, separators included
	hasContent bool   // current chunk holds at least one non-seed unit
	lastRaw    string // last non-overlap unit added, used for overlap seeding
}

// add appends a unit to the current chunk, closing it first when the joined
// text would exceed the budget.
func (b *builder) add(u unit) {
	if b.hasContent {
		candidate := b.text + u.sep + u.text
		if b.chunker.codec.Count(candidate) <= b.chunker.maxTokens {
			b.text = candidate
			b.lastRaw = u.text
			return
		}
		last := b.lastRaw
		b.flush()
		b.seedOverlap(last)
	}
	if b.text != "" {
		// an overlap seed is pending; it joins on a paragraph break
		candidate := b.text + paragraphSep + u.text
		if b.chunker.codec.Count(candidate) <= b.chunker.maxTokens {
			b.text = candidate
		} else {
			// the seed plus this unit would blow the budget; the
			// unit wins over the seed
			b.text = u.text
		}
	} else {
		b.text = u.text
	}
	b.hasContent = true
	b.lastRaw = u.text
}

// seedOverlap opens the next chunk with up to overlapTokens worth of trailing
// tokens from the prior unit. A seed alone never becomes a chunk.
func (b *builder) seedOverlap(prior string) {
	if b.chunker.overlapTokens <= 0 || prior == "" {
		return
	}
	overlap := b.chunker.codec.Tail(prior, b.chunker.overlapTokens)
	if overlap == "" {
		return
	}
	b.text = overlap
	b.hasContent = false
}

// flush closes the current chunk, if it holds any real content.
func (b *builder) flush() {
	if !b.hasContent {
		b.text = ""
		return
	}
	trimmed := strings.TrimSpace(b.text)
	b.chunks = append(b.chunks, domain.Chunk{
		Index:      len(b.chunks),
		Text:       trimmed,
		TokenCount: b.chunker.codec.Count(trimmed),
	})
	b.text = ""
	b.hasContent = false
	b.lastRaw = ""
}

// emit appends a chunk directly, bypassing the accumulator. Used for
// indivisible oversized units.
func (b *builder) emit(text string) {
	b.chunks = append(b.chunks, domain.Chunk{
		Index:      len(b.chunks),
		Text:       text,
		TokenCount: b.chunker.codec.Count(text),
	})
}
