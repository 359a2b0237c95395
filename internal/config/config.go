// Package config loads proxy and client settings from config.yaml and
// RAGPROXY_ environment variables.
//
// Environment variables override the file. Nested keys use a double
// underscore: RAGPROXY_RAG__MAX_CONTEXT_TOKENS sets rag.max_context_tokens.
// Secret fields may reference other variables as ${NAME}.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read as configuration.
const EnvPrefix = "RAGPROXY_"

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

// Retrieval modes.
const (
	ModeFTS    = "fts"
	ModeVector = "vector"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	OpenAI  OpenAIConfig  `koanf:"openai"`
	RAG     RAGConfig     `koanf:"rag"`
	Storage StorageConfig `koanf:"storage"`
	Client  ClientConfig  `koanf:"client"`
	Tracing TracingConfig `koanf:"tracing"`
}

type ServerConfig struct {
	Port       int           `koanf:"port"`
	Timeout    time.Duration `koanf:"timeout"`
	CORSOrigin string        `koanf:"cors_origin"`
	// APIKeys are SHA-256 hashes, optionally prefixed "name:". Empty
	// disables authentication.
	APIKeys   []string        `koanf:"api_keys"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

type OpenAIConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	Model          string `koanf:"model"`
	EmbeddingModel string `koanf:"embedding_model"`
}

type RAGConfig struct {
	Enabled          bool        `koanf:"enabled"`
	StudyID          string      `koanf:"study_id"`
	Limit            int         `koanf:"limit"`
	Mode             string      `koanf:"mode"`
	MaxContextTokens int         `koanf:"max_context_tokens"`
	OutputContext    bool        `koanf:"output_context"`
	WatchDir         string      `koanf:"watch_dir"`
	Chunk            ChunkConfig `koanf:"chunk"`
}

type ChunkConfig struct {
	MaxLength int `koanf:"max_length"`
	Overlap   int `koanf:"overlap"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite or memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// ClientConfig drives ragctl's chat sessions.
type ClientConfig struct {
	BaseURL           string  `koanf:"base_url"`
	APIKey            string  `koanf:"api_key"`
	Model             string  `koanf:"model"`
	Temperature       float64 `koanf:"temperature"`
	MaxToolIterations int     `koanf:"max_tool_iterations"`
	SystemPrompt      string  `koanf:"system_prompt"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"server.port":                8080,
	"server.timeout":             "120s",
	"server.cors_origin":         "*",
	"server.rate_limit.rps":      0.0,
	"server.rate_limit.burst":    20,
	"openai.base_url":            "https://api.openai.com/v1",
	"openai.model":               "gpt-4o-mini",
	"openai.embedding_model":     "text-embedding-3-small",
	"rag.enabled":                true,
	"rag.study_id":               "spineai",
	"rag.limit":                  5,
	"rag.mode":                   ModeFTS,
	"rag.max_context_tokens":     0,
	"rag.output_context":         true,
	"rag.chunk.max_length":       2200,
	"rag.chunk.overlap":          200,
	"storage.type":               "sqlite",
	"storage.sqlite.path":        "ragproxy.db",
	"client.base_url":            "http://localhost:8080/v1",
	"client.model":               "gpt-4o",
	"client.temperature":         0.0,
	"client.max_tool_iterations": 25,
}

// Load reads DefaultPath and the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath)
}

// LoadFrom reads the YAML file at path, then the environment. A missing file
// is not an error.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.OpenAI.APIKey = substituteEnvVars(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Client.APIKey = substituteEnvVars(cfg.Client.APIKey)
	cfg.Server.APIKeys = splitList(cfg.Server.APIKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.RAG.Chunk.MaxLength-c.RAG.Chunk.Overlap <= 0 {
		return fmt.Errorf("rag.chunk: max_length %d must exceed overlap %d", c.RAG.Chunk.MaxLength, c.RAG.Chunk.Overlap)
	}
	switch c.RAG.Mode {
	case ModeFTS, ModeVector:
	default:
		return fmt.Errorf("rag.mode %q: want %q or %q", c.RAG.Mode, ModeFTS, ModeVector)
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.type %q: want sqlite or memory", c.Storage.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// splitList expands comma-separated entries, the form lists take in the
// environment.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
