package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/tjfontaine/rag-chat-proxy/internal/config"
	"github.com/tjfontaine/rag-chat-proxy/internal/frontdoor"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		g.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from path and the environment.
func WithConfigFile(path string) Option {
	return func(g *Gateway) error {
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return fmt.Errorf("load config from %s: %w", path, err)
		}
		g.cfg = cfg
		return nil
	}
}

// WithStore uses a caller-owned store. Shutdown leaves it open.
func WithStore(s storage.Store) Option {
	return func(g *Gateway) error {
		g.store = s
		g.ownsStore = false
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		g.logger = logger
		return nil
	}
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) error {
		g.httpClient = c
		return nil
	}
}

// WithCompleter replaces the upstream chat client.
func WithCompleter(c frontdoor.Completer) Option {
	return func(g *Gateway) error {
		g.completer = c
		return nil
	}
}

// WithListener serves on ln instead of server.port.
func WithListener(ln net.Listener) Option {
	return func(g *Gateway) error {
		g.listener = ln
		return nil
	}
}
