package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// Mode selects how passages are ranked.
type Mode string

const (
	// ModeFTS ranks with full text search.
	ModeFTS Mode = "fts"
	// ModeVector ranks by embedding similarity.
	ModeVector Mode = "vector"
)

// ParseMode validates a configured mode. Empty means full text search.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFTS:
		return ModeFTS, nil
	case ModeVector:
		return ModeVector, nil
	default:
		return "", fmt.Errorf("unknown retrieval mode %q", s)
	}
}

// Retriever answers queries against one study's chunks.
type Retriever struct {
	Store    storage.DocumentStore
	Embedder Embedder
	StudyID  string
	Mode     Mode
	Logger   *slog.Logger
}

// Retrieve returns up to limit passages for query, best first. No match is an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) ([]Passage, error) {
	opts := storage.SearchOptions{StudyID: r.StudyID, Limit: limit}

	var (
		hits []storage.ScoredChunk
		err  error
	)
	switch r.Mode {
	case ModeVector:
		if r.Embedder == nil {
			return nil, errors.New("vector retrieval requires an embedder")
		}
		vectors, eerr := r.Embedder.Embed(ctx, []string{query})
		if eerr != nil {
			return nil, fmt.Errorf("failed to embed query: %w", eerr)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected one query vector, got %d", len(vectors))
		}
		hits, err = r.Store.SearchVectors(ctx, vectors[0], opts)
	default:
		hits, err = r.Store.Search(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, Passage{
			Text:       h.Text,
			Source:     h.Source,
			ChunkIndex: h.Index,
			Score:      h.Score,
		})
	}

	if r.Logger != nil {
		r.Logger.Debug("retrieved passages",
			slog.String("study_id", r.StudyID),
			slog.String("mode", string(r.Mode)),
			slog.Int("passages", len(passages)),
		)
	}
	return passages, nil
}
