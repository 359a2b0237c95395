package runtime

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/config"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// NewUpstream returns a client for the configured OpenAI endpoint, or nil
// when no API key is set.
func NewUpstream(cfg config.OpenAIConfig, httpClient *http.Client) *openai.Client {
	if cfg.APIKey == "" {
		return nil
	}
	return openai.NewClient(cfg.APIKey,
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(httpClient),
	)
}

// NewIndex builds the indexer and retriever for cfg.RAG over store. The
// embedder may be nil in full text search mode.
func NewIndex(cfg *config.Config, store storage.DocumentStore, embedder rag.Embedder, logger *slog.Logger) (*rag.Indexer, *rag.Retriever, error) {
	mode, err := rag.ParseMode(cfg.RAG.Mode)
	if err != nil {
		return nil, nil, err
	}
	if mode == rag.ModeVector && embedder == nil {
		return nil, nil, errors.New("rag.mode vector requires openai.api_key for embeddings")
	}

	indexer := &rag.Indexer{
		Store:    store,
		Chunking: rag.ChunkOptions{MaxLength: cfg.RAG.Chunk.MaxLength, Overlap: cfg.RAG.Chunk.Overlap},
		Logger:   logger,
	}
	if mode == rag.ModeVector {
		indexer.Embedder = embedder
	}
	retriever := &rag.Retriever{
		Store:    store,
		Embedder: embedder,
		StudyID:  cfg.RAG.StudyID,
		Mode:     mode,
		Logger:   logger,
	}
	return indexer, retriever, nil
}
