package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

const truncationMarker = "\n[... truncated ...]"

// TextProcessor bounds and cleans text before it is sent to a model backend
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText truncates text to at most maxRunes runes. A non-positive
// limit disables truncation.
func (tp *TextProcessor) TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	truncated := string(runes[:maxRunes])

	tp.logger.Debug("Text truncated",
		zap.Int("original_runes", len(runes)),
		zap.Int("max_runes", maxRunes))

	return truncated + truncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 sequences and control characters other
// than newlines and tabs
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	clean := strings.ToValidUTF8(text, "")
	clean = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, clean)

	if len(clean) != len(text) {
		tp.logger.Debug("Text sanitized",
			zap.Int("original_size", len(text)),
			zap.Int("sanitized_size", len(clean)))
	}
	return clean
}

// CollapseWhitespace folds runs of blank lines and spaces
func (tp *TextProcessor) CollapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// ProcessText sanitizes, collapses and truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxRunes int) string {
	return tp.TruncateText(tp.CollapseWhitespace(tp.SanitizeUTF8(text)), maxRunes)
}
