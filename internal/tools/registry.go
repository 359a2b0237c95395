// Package tools holds the client-side functions offered to the model during
// a chat round.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// UnknownToolResult is returned for calls to unregistered names.
const UnknownToolResult = "Unknown tool"

// Handler runs one call with decoded arguments and returns the tool output.
type Handler func(ctx context.Context, args map[string]any) string

// Tool is a named function with its JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry maps tool names to handlers. It implements chat.ToolExecutor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Execute runs the named tool. Unregistered names yield UnknownToolResult.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok || t.Handler == nil {
		return UnknownToolResult
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(ctx, args)
}

// Definitions returns the wire declarations sorted by name.
func (r *Registry) Definitions() []openai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, openai.Tool{
			Type: "function",
			Function: openai.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}
