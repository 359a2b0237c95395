package rag

import (
	"fmt"
	"strings"
)

// passageSeparator joins formatted passages.
const passageSeparator = "\n\n---\n\n"

// Passage is one retrieved chunk with its provenance.
type Passage struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score,omitempty"`
}

// FormatPassages renders passages as the context block handed to the model.
// No passages yield an empty string.
func FormatPassages(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		source := p.Source
		if source == "" {
			source = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Document: %s | Chunk %d]\n%s", source, p.ChunkIndex, text))
	}
	return strings.Join(parts, passageSeparator)
}
