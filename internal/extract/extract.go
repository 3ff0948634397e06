// Package extract turns uploaded document bytes into analyzable text.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// minTextLength is the minimum trimmed length worth analyzing. Anything
// shorter produces garbage analyses and wastes model tokens.
const minTextLength = 100

// PlainTextExtractor handles text-native formats. Binary formats (pdf, docx,
// scans) are extracted by an upstream service before upload; by the time a
// document reaches the pipeline its file either is plain text or carries an
// extracted-text sidecar stored under the same key.
type PlainTextExtractor struct {
	logger *zap.Logger
}

func NewPlainTextExtractor(logger *zap.Logger) *PlainTextExtractor {
	return &PlainTextExtractor{logger: logger}
}

// Extract decodes the file bytes as UTF-8 text. Fails with
// domain.ErrExtraction when the trimmed text is shorter than the analyzable
// minimum and with domain.ErrProcessing for file types it cannot handle.
func (e *PlainTextExtractor) Extract(fileBytes []byte, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "txt", "text", "md":
	default:
		return "", errors.Wrapf(domain.ErrProcessing, "unsupported file type %q", fileType)
	}

	if !utf8.Valid(fileBytes) {
		return "", errors.Wrap(domain.ErrProcessing, "file is not valid UTF-8 text")
	}

	text := string(fileBytes)
	if len(strings.TrimSpace(text)) < minTextLength {
		return "", errors.Wrapf(domain.ErrExtraction, "%d usable characters", len(strings.TrimSpace(text)))
	}

	e.logger.Debug("text extracted", zap.Int("characters", len(text)))
	return text, nil
}

var _ domain.TextExtractor = (*PlainTextExtractor)(nil)
