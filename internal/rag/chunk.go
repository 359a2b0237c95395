package rag

import (
	"fmt"
	"strings"
)

// Chunking defaults.
const (
	DefaultChunkMaxLength = 2200
	DefaultChunkOverlap   = 200
)

// ChunkOptions sizes the chunk window in characters.
type ChunkOptions struct {
	MaxLength int
	Overlap   int
}

// DefaultChunkOptions returns the default window.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MaxLength: DefaultChunkMaxLength, Overlap: DefaultChunkOverlap}
}

// ChunkText splits text into windows of at most MaxLength characters, each
// starting MaxLength-Overlap characters after the previous one. Windows are
// trimmed and empty ones dropped. A zero MaxLength uses the default window;
// the overlap must stay below MaxLength.
func ChunkText(text string, opts ChunkOptions) ([]string, error) {
	if opts.MaxLength == 0 {
		opts = DefaultChunkOptions()
	}
	step := opts.MaxLength - opts.Overlap
	if step <= 0 || opts.Overlap < 0 {
		return nil, fmt.Errorf("chunk max length (%d) must be greater than overlap (%d)", opts.MaxLength, opts.Overlap)
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+opts.MaxLength, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}
