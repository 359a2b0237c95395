// Package runtime assembles the proxy from configuration and manages its
// lifecycle: storage, the document index and its watcher, the upstream
// client, and the HTTP server.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/auth"
	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/config"
	"github.com/tjfontaine/rag-chat-proxy/internal/frontdoor"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/server"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage/memory"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage/sqlite"
	"github.com/tjfontaine/rag-chat-proxy/internal/telemetry"
	"github.com/tjfontaine/rag-chat-proxy/internal/tokens"
	"github.com/tjfontaine/rag-chat-proxy/internal/watcher"
)

// Gateway is the running proxy. It can be embedded in a larger program or run
// standalone from cmd/ragproxy.
type Gateway struct {
	cfg        *config.Config
	store      storage.Store
	ownsStore  bool
	httpClient *http.Client
	completer  frontdoor.Completer
	logger     *slog.Logger

	upstream  *openai.Client
	embedder  rag.Embedder
	indexer   *rag.Indexer
	retriever *rag.Retriever
	handler   *frontdoor.Handler
	server    *server.Server
	watcher   *watcher.Watcher

	listener net.Listener
	errc     chan error
	cancel   context.CancelFunc
	mu       sync.Mutex
	started  bool
}

// New builds a Gateway. Without WithConfig or WithConfigFile, config.yaml and
// the environment are read.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		gw.cfg = cfg
	}

	if gw.store == nil {
		store, err := OpenStore(gw.cfg.Storage)
		if err != nil {
			return nil, err
		}
		gw.store = store
		gw.ownsStore = true
	}

	if err := gw.build(); err != nil {
		gw.closeStore()
		return nil, err
	}
	return gw, nil
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "", "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func (g *Gateway) build() error {
	cfg := g.cfg
	logger := g.logger

	if g.httpClient == nil {
		g.httpClient = telemetry.HTTPClient(nil)
	}
	g.upstream = NewUpstream(cfg.OpenAI, g.httpClient)
	if g.upstream != nil {
		g.embedder = &rag.OpenAIEmbedder{Client: g.upstream, Model: cfg.OpenAI.EmbeddingModel}
	} else {
		logger.Warn("OPENAI_API_KEY not configured; chat requests will fail until it is set")
	}
	if g.completer == nil && g.upstream != nil {
		g.completer = g.upstream
	}

	var err error
	g.indexer, g.retriever, err = NewIndex(cfg, g.store, g.embedder, logger)
	if err != nil {
		return err
	}

	counter := tokens.NewCounter()
	gate := &chat.Gate{Retriever: g.retriever, Limit: cfg.RAG.Limit, Logger: logger}
	if cfg.RAG.MaxContextTokens > 0 {
		gate.Trimmer = &tokens.Budget{
			Counter:   counter,
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.RAG.MaxContextTokens,
			Logger:    logger,
		}
	}

	g.handler = frontdoor.NewHandler(g.completer, gate,
		frontdoor.WithInteractionStore(g.store),
		frontdoor.WithTokenCounter(counter),
		frontdoor.WithDefaultModel(cfg.OpenAI.Model),
		frontdoor.WithRetrieval(cfg.RAG.Enabled),
		frontdoor.WithContextOutput(cfg.RAG.OutputContext),
		frontdoor.WithLogger(logger),
	)

	keys, err := auth.NewKeySet(cfg.Server.APIKeys)
	if err != nil {
		return fmt.Errorf("server.api_keys: %w", err)
	}
	if keys.Len() == 0 {
		logger.Info("no API keys configured, authentication disabled")
	}
	g.server = server.New(server.Config{
		Port:       cfg.Server.Port,
		Timeout:    cfg.Server.Timeout,
		CORSOrigin: cfg.Server.CORSOrigin,
		Keys:       keys,
		RateLimit:  cfg.Server.RateLimit.RPS,
		RateBurst:  cfg.Server.RateLimit.Burst,
	}, logger)

	for _, route := range frontdoor.Routes(g.handler, "") {
		g.server.HandleAll(route.Path, route.Handler)
		logger.Debug("registered route", slog.String("path", route.Path))
	}
	g.server.Handle(http.MethodGet, "/health", g.health)

	if cfg.RAG.WatchDir != "" {
		w, err := watcher.New(cfg.RAG.WatchDir, g.indexer,
			watcher.WithRemover(g.store),
			watcher.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("create document watcher: %w", err)
		}
		g.watcher = w
	}
	return nil
}

// Start indexes the watch directory, starts watching it, and begins serving.
// It returns once the listener is open; serve errors arrive on Err.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return errors.New("gateway already started")
	}

	ctx, g.cancel = context.WithCancel(ctx)

	if g.watcher != nil {
		n, err := g.watcher.Sync(ctx)
		if err != nil {
			g.logger.Error("initial document sync failed", slog.String("error", err.Error()))
		} else {
			g.logger.Info("initial document sync complete", slog.Int("files", n))
		}
		if err := g.watcher.Start(ctx); err != nil {
			g.cancel()
			return fmt.Errorf("start document watcher: %w", err)
		}
	}

	if g.listener == nil {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.cfg.Server.Port))
		if err != nil {
			g.cancel()
			if g.watcher != nil {
				g.watcher.Close()
			}
			return fmt.Errorf("listen on port %d: %w", g.cfg.Server.Port, err)
		}
		g.listener = ln
	}

	g.errc = make(chan error, 1)
	go func() {
		g.errc <- g.server.Serve(g.listener)
	}()
	g.started = true

	g.logger.Info("gateway started",
		slog.String("addr", g.listener.Addr().String()),
		slog.Bool("rag_enabled", g.cfg.RAG.Enabled),
		slog.String("rag_mode", g.cfg.RAG.Mode),
		slog.String("study_id", g.cfg.RAG.StudyID),
	)
	return nil
}

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Err reports a serve failure. It yields nil after a clean Shutdown.
func (g *Gateway) Err() <-chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errc
}

// Shutdown stops the server, the watcher, and closes storage it opened.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	var errs []error
	if g.started {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if g.cancel != nil {
		g.cancel()
	}
	if g.watcher != nil {
		if err := g.watcher.Close(); err != nil {
			g.logger.Error("failed to close watcher", slog.String("error", err.Error()))
		}
	}
	if err := g.closeStore(); err != nil {
		errs = append(errs, err)
	}

	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}

func (g *Gateway) closeStore() error {
	if !g.ownsStore || g.store == nil {
		return nil
	}
	if err := g.store.Close(); err != nil {
		g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Handler returns the root HTTP handler with the full middleware chain.
func (g *Gateway) Handler() http.Handler { return g.server.Router }

// Indexer returns the document indexer.
func (g *Gateway) Indexer() *rag.Indexer { return g.indexer }

// Retriever returns the passage retriever.
func (g *Gateway) Retriever() *rag.Retriever { return g.retriever }

// Store returns the storage backend.
func (g *Gateway) Store() storage.Store { return g.store }

// Config returns the effective configuration.
func (g *Gateway) Config() *config.Config { return g.cfg }

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":       "ok",
		"rag_enabled":  g.cfg.RAG.Enabled,
		"upstream_set": g.completer != nil,
	}
	docs, err := g.store.ListDocuments(r.Context(), g.cfg.RAG.StudyID)
	if err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
	} else {
		status["documents"] = len(docs)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
