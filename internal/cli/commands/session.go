package commands

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
	"github.com/tjfontaine/rag-chat-proxy/internal/config"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/runtime"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
	"github.com/tjfontaine/rag-chat-proxy/internal/telemetry"
	"github.com/tjfontaine/rag-chat-proxy/internal/tools"
)

// newSession builds a chat session that talks to the proxy at
// client.base_url. Disabling retrieval sets ragEnabled=false on every call.
func newSession(cfg *config.Config, name string, ragEnabled bool, logger *slog.Logger) *chat.Session {
	opts := []openai.ClientOption{
		openai.WithBaseURL(cfg.Client.BaseURL),
		openai.WithHTTPClient(telemetry.HTTPClient(nil)),
	}
	if !ragEnabled {
		opts = append(opts, openai.WithQueryParam("ragEnabled", "false"))
	}
	client := openai.NewClient(cfg.Client.APIKey, opts...)

	registry := tools.NewFHIRRegistry()
	prompt := cfg.Client.SystemPrompt
	if prompt == "" {
		prompt = tools.SystemPrompt
	}
	temperature := float32(cfg.Client.Temperature)

	return chat.NewSession(name, chat.Round{
		Completer: chat.ClientCompleter{
			Client:  client,
			Options: &openai.RequestOptions{UserAgent: "ragctl/" + version},
		},
		Executor:      registry,
		Projector:     chat.Projector{SystemPrompt: prompt},
		Model:         cfg.Client.Model,
		Tools:         registry.Definitions(),
		Temperature:   &temperature,
		MaxIterations: cfg.Client.MaxToolIterations,
		Logger:        logger.With(slog.String("session", name)),
	})
}

// localIndex is the document index opened directly from storage, without a
// running proxy.
type localIndex struct {
	store     storage.Store
	indexer   *rag.Indexer
	retriever *rag.Retriever
}

func openStore(cfg *config.Config) (storage.Store, error) {
	store, err := runtime.OpenStore(cfg.Storage)
	if err != nil {
		ui.PrintError("%v", err)
		return nil, fmt.Errorf("storage unavailable")
	}
	return store, nil
}

func openLocalIndex(cfg *config.Config, logger *slog.Logger) (*localIndex, error) {
	store, err := runtime.OpenStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	var embedder rag.Embedder
	if upstream := runtime.NewUpstream(cfg.OpenAI, telemetry.HTTPClient(nil)); upstream != nil {
		embedder = &rag.OpenAIEmbedder{Client: upstream, Model: cfg.OpenAI.EmbeddingModel}
	}

	indexer, retriever, err := runtime.NewIndex(cfg, store, embedder, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("configure index: %w", err)
	}
	return &localIndex{store: store, indexer: indexer, retriever: retriever}, nil
}

// lastAssistantText returns the final assistant reply in messages.
func lastAssistantText(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant && len(messages[i].ToolCalls) == 0 {
			return messages[i].Text()
		}
	}
	return ""
}
