package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// Document is a file to index.
type Document struct {
	StudyID string
	// Source identifies the file in the index; re-indexing the same source
	// replaces its chunks.
	Source string
	Data   []byte
}

// IndexResult reports the outcome of indexing one document.
type IndexResult struct {
	Success       bool   `json:"success"`
	ChunksIndexed int    `json:"chunksIndexed"`
	Error         string `json:"error,omitempty"`
}

// Indexer runs the extract, clean, chunk, embed and store pipeline.
type Indexer struct {
	Store storage.DocumentStore
	// Embedder is optional; without it chunks are stored for full text
	// search only.
	Embedder Embedder
	Chunking ChunkOptions
	Logger   *slog.Logger
}

// IndexDocument indexes doc, replacing any chunks previously stored for the
// same source. Failures are reported in the result, never returned.
func (ix *Indexer) IndexDocument(ctx context.Context, doc Document) IndexResult {
	n, err := ix.index(ctx, doc)
	if err != nil {
		ix.logger().Error("indexing failed",
			slog.String("study_id", doc.StudyID),
			slog.String("source", doc.Source),
			slog.String("error", err.Error()),
		)
		return IndexResult{Error: err.Error()}
	}
	return IndexResult{Success: true, ChunksIndexed: n}
}

// IndexFile reads path and indexes it under source.
func (ix *Indexer) IndexFile(ctx context.Context, studyID, path, source string) IndexResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return IndexResult{Error: fmt.Sprintf("failed to read %s: %v", path, err)}
	}
	return ix.IndexDocument(ctx, Document{StudyID: studyID, Source: source, Data: data})
}

func (ix *Indexer) index(ctx context.Context, doc Document) (int, error) {
	logger := ix.logger().With(slog.String("study_id", doc.StudyID), slog.String("source", doc.Source))

	raw, err := ExtractText(doc.Source, doc.Data)
	if err != nil {
		return 0, err
	}
	logger.Info("extracted document text", slog.Int("length", utf8.RuneCountInString(raw)))

	cleaned := CleanText(raw)
	logger.Info("cleaned document text", slog.Int("length", utf8.RuneCountInString(cleaned)))

	texts, err := ChunkText(cleaned, ix.Chunking)
	if err != nil {
		return 0, err
	}
	logger.Info("created chunks", slog.Int("chunks", len(texts)))

	var vectors [][]float32
	if ix.Embedder != nil && len(texts) > 0 {
		vectors, err = ix.Embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks: %w", err)
		}
	}

	chunks := make([]storage.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = storage.Chunk{Index: i, Text: text}
		if i < len(vectors) {
			chunks[i].Embedding = vectors[i]
		}
	}

	if err := ix.Store.ReplaceDocument(ctx, doc.StudyID, doc.Source, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	logger.Info("document indexed", slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func (ix *Indexer) logger() *slog.Logger {
	if ix.Logger != nil {
		return ix.Logger
	}
	return slog.Default()
}
