package chat

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
)

// DefaultRetrievalLimit is the number of passages requested per turn.
const DefaultRetrievalLimit = 5

// RagContext describes the context retrieved for one user turn. It is never
// persisted.
type RagContext struct {
	Context       string `json:"context"`
	ContextLength int    `json:"contextLength"`
	Enabled       bool   `json:"enabled"`
}

// HasContext reports whether any context text was attached.
func (rc *RagContext) HasContext() bool {
	return rc != nil && strings.TrimSpace(rc.Context) != ""
}

// Retriever returns ranked passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]rag.Passage, error)
}

// ContextTrimmer shortens retrieved context to fit a budget.
type ContextTrimmer interface {
	Truncate(text string) string
}

// Gate decides whether to retrieve context for a turn and injects it.
type Gate struct {
	Retriever Retriever
	Limit     int
	Trimmer   ContextTrimmer
	Logger    *slog.Logger
}

// MaybeRetrieve augments history with context for its latest user message.
//
// Disabled retrieval returns history and a nil RagContext. Enabled retrieval
// always returns a RagContext with Enabled set; a retrieval failure is logged
// and treated as empty context, never surfaced to the caller.
func (g *Gate) MaybeRetrieve(ctx context.Context, history []Message, enabled bool) ([]Message, *RagContext) {
	info := g.Lookup(ctx, history, enabled)
	if !info.HasContext() {
		return history, info
	}

	augmented := Inject(history, info.Context)
	g.logger().Info("context injected",
		slog.Int("context_length", info.ContextLength),
		slog.Int("messages_before", len(history)),
		slog.Int("messages_after", len(augmented)),
	)
	return augmented, info
}

// Lookup retrieves context for the latest user message of history without
// modifying it. The result follows the MaybeRetrieve rules.
func (g *Gate) Lookup(ctx context.Context, history []Message, enabled bool) *RagContext {
	if !enabled || g == nil || g.Retriever == nil {
		return nil
	}

	logger := g.logger()
	info := &RagContext{Enabled: true}

	query := LastUserText(history)
	if query == "" {
		return info
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.retrieve")
	defer span.End()

	limit := g.Limit
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}

	logger.Info("retrieving context", slog.String("query", truncateForLog(query, 100)))
	passages, err := g.Retriever.Retrieve(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		logger.Error("retrieval failed, continuing without context", slog.String("error", err.Error()))
		return info
	}

	text := rag.FormatPassages(passages)
	if g.Trimmer != nil {
		text = g.Trimmer.Truncate(text)
	}
	if strings.TrimSpace(text) == "" {
		logger.Info("no relevant context found")
		return info
	}

	info.Context = text
	info.ContextLength = utf8.RuneCountInString(text)
	span.SetAttributes(
		attribute.Int("rag.passages", len(passages)),
		attribute.Int("rag.context_length", info.ContextLength),
	)
	return info
}

// LastUserText returns the text of the most recent user message that has any.
func LastUserText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleUser {
			continue
		}
		if text := history[i].Text(); text != "" {
			return text
		}
	}
	return ""
}

func (g *Gate) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func truncateForLog(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
