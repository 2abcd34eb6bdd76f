package sync

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// maxDescriptionLen caps extracted descriptions so a linked page cannot
// bloat the events table.
const maxDescriptionLen = 2000

// DescriptionExtractor pulls readable text out of an event's linked page
// for sources that enable description enrichment.
type DescriptionExtractor struct{}

func NewDescriptionExtractor() *DescriptionExtractor {
	return &DescriptionExtractor{}
}

func (e *DescriptionExtractor) Run(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	if utf8.RuneCountInString(text) > maxDescriptionLen {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxDescriptionLen]))
	}

	slog.Debug("Description extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return text, nil
}
