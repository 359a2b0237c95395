// Package frontdoor serves the retrieval-augmented chat completions endpoint.
//
// A request is an OpenAI chat completion body. Before it is forwarded the
// latest user message is used to retrieve passages from the document index,
// which are injected as a system message. Streaming responses are passed
// through chunk for chunk, optionally preceded by a rag_context event;
// non-streaming responses gain a _ragContext field.
package frontdoor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/codec"
	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
	"github.com/tjfontaine/rag-chat-proxy/internal/server"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
	"github.com/tjfontaine/rag-chat-proxy/internal/tokens"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gpt-4o-mini"

// maxBodySize bounds a request body.
const maxBodySize = 10 << 20

// RagEnabledParam is the query flag that turns retrieval off for one call.
const RagEnabledParam = "ragEnabled"

// Completer sends a chat completion upstream. *openai.Client satisfies it.
type Completer interface {
	Create(ctx context.Context, req *openai.ChatCompletionRequest, opts *openai.RequestOptions) (*openai.Completion, error)
}

// Route is an HTTP route registration.
type Route struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// Handler is the chat endpoint.
type Handler struct {
	client        Completer
	gate          *chat.Gate
	store         storage.InteractionStore
	counter       *tokens.Counter
	model         string
	ragEnabled    bool
	outputContext bool
	logger        *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithInteractionStore records every call.
func WithInteractionStore(s storage.InteractionStore) Option {
	return func(h *Handler) { h.store = s }
}

// WithTokenCounter logs prompt token counts.
func WithTokenCounter(c *tokens.Counter) Option {
	return func(h *Handler) { h.counter = c }
}

// WithDefaultModel overrides DefaultModel.
func WithDefaultModel(model string) Option {
	return func(h *Handler) {
		if model != "" {
			h.model = model
		}
	}
}

// WithRetrieval sets whether retrieval runs by default. The per-call query
// flag can only turn it off.
func WithRetrieval(enabled bool) Option {
	return func(h *Handler) { h.ragEnabled = enabled }
}

// WithContextOutput emits the rag_context event ahead of streamed chunks.
func WithContextOutput(enabled bool) Option {
	return func(h *Handler) { h.outputContext = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates the chat handler. A nil client makes every call fail
// with a configuration error, so a server without upstream credentials still
// starts and reports the problem per request.
func NewHandler(client Completer, gate *chat.Gate, opts ...Option) *Handler {
	h := &Handler{
		client:        client,
		gate:          gate,
		model:         DefaultModel,
		ragEnabled:    true,
		outputContext: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the paths the handler is served on.
func Routes(h *Handler, basePath string) []Route {
	return []Route{
		{Path: basePath + "/chat", Method: http.MethodPost, Handler: h.ServeHTTP},
		{Path: basePath + "/v1/chat/completions", Method: http.MethodPost, Handler: h.ServeHTTP},
	}
}

// call carries per-request state through the handler.
type call struct {
	start      time.Time
	requestID  string
	req        *openai.ChatCompletionRequest
	rag        *chat.RagContext
	ragEnabled bool
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := &call{start: time.Now(), requestID: server.GetRequestID(ctx)}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		codec.WriteError(w, domain.ErrMethodNotAllowed("Method Not Allowed"))
		return
	}

	if h.client == nil {
		err := domain.ErrConfiguration("OPENAI_API_KEY not configured")
		h.logger.Error("server error: upstream credentials not configured",
			slog.String("request_id", c.requestID),
		)
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}

	req, err := decodeRequest(w, r)
	if err != nil {
		h.logger.Warn("rejected chat request",
			slog.String("request_id", c.requestID),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		codec.WriteError(w, err)
		return
	}
	if req.Model == "" {
		req.Model = h.model
	}
	c.req = req
	c.ragEnabled = h.ragEnabled && r.URL.Query().Get(RagEnabledParam) != "false"

	server.AddLogField(ctx, "frontdoor", "chat")
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		server.AddLogField(ctx, "trace_id", sc.TraceID().String())
	}
	server.AddLogField(ctx, "requested_model", req.Model)
	server.AddLogField(ctx, "rag_enabled", strconv.FormatBool(c.ragEnabled))
	h.logger.Info("chat request",
		slog.String("request_id", c.requestID),
		slog.Bool("rag_enabled", c.ragEnabled),
		slog.Int("messages", len(req.Messages)),
		slog.Bool("stream", req.Stream),
	)

	c.rag = h.gate.Lookup(ctx, chat.FromWire(req.Messages), c.ragEnabled)
	if c.rag.HasContext() {
		before := len(req.Messages)
		req.Messages = chat.InjectWire(req.Messages, c.rag.Context)
		h.logger.Info("context injected",
			slog.String("request_id", c.requestID),
			slog.Int("context_length", c.rag.ContextLength),
			slog.Int("messages_before", before),
			slog.Int("messages_after", len(req.Messages)),
		)
		server.AddLogField(ctx, "rag_context_length", strconv.Itoa(c.rag.ContextLength))
	}

	if h.counter != nil {
		if n, err := h.counter.CountMessages(req.Model, req.Messages); err == nil {
			server.AddLogField(ctx, "prompt_tokens", strconv.Itoa(n))
		}
	}

	opts := &openai.RequestOptions{UserAgent: r.Header.Get("User-Agent")}
	if req.Stream {
		h.handleStream(w, r, c, opts)
		return
	}
	h.handleComplete(w, r, c, opts)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request, c *call, opts *openai.RequestOptions) {
	ctx := r.Context()

	completion, err := h.client.Create(ctx, c.req, opts)
	if err == nil && completion.Response == nil {
		err = errors.New("upstream returned no response")
	}
	if err != nil {
		h.logger.Error("chat completion failed",
			slog.String("request_id", c.requestID),
			slog.String("requested_model", c.req.Model),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		h.record(ctx, c, "", err)
		codec.WriteError(w, err)
		return
	}

	resp := completion.Response
	body, err := withRagContext(resp, c.rag)
	if err != nil {
		h.logger.Error("failed to encode response",
			slog.String("request_id", c.requestID),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		h.record(ctx, c, "", err)
		codec.WriteError(w, err)
		return
	}

	finishReason := ""
	if len(resp.Choices) > 0 {
		finishReason = resp.Choices[0].FinishReason
	}
	server.AddLogField(ctx, "served_model", resp.Model)
	h.record(ctx, c, finishReason, nil)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, c *call, opts *openai.RequestOptions) {
	ctx := r.Context()

	sse, err := newSSEWriter(w)
	if err != nil {
		server.AddError(ctx, err)
		codec.WriteError(w, domain.ErrServer(err.Error()))
		return
	}

	// Upstream is contacted before any header is written, so a failure here
	// still gets a proper status code.
	completion, err := h.client.Create(ctx, c.req, opts)
	if err == nil && completion.Stream == nil {
		err = errors.New("upstream returned no stream")
	}
	if err != nil {
		h.logger.Error("failed to start chat stream",
			slog.String("request_id", c.requestID),
			slog.String("requested_model", c.req.Model),
			slog.String("error", err.Error()),
		)
		server.AddError(ctx, err)
		h.record(ctx, c, "", err)
		codec.WriteError(w, err)
		return
	}
	stream := completion.Stream
	defer stream.Close()

	sse.start()

	if h.outputContext && c.rag.HasContext() {
		if err := sse.json(openai.RagContextEvent{
			Type:          openai.RagContextEventType,
			Context:       c.rag.Context,
			ContextLength: c.rag.ContextLength,
			Enabled:       c.rag.Enabled,
		}); err != nil {
			h.logger.Info("client went away before first chunk", slog.String("request_id", c.requestID))
			h.record(ctx, c, "", err)
			return
		}
	}

	acc := chat.NewAccumulator()
	var streamErr error
	var servedModel string
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				h.logger.Info("stream canceled by client", slog.String("request_id", c.requestID))
				break
			}
			h.logger.Error("stream event error",
				slog.String("request_id", c.requestID),
				slog.String("error", err.Error()),
			)
			server.AddError(ctx, err)
			if werr := codec.WriteStreamError(sse, err); werr != nil {
				h.logger.Warn("failed to report stream error", slog.String("error", werr.Error()))
			}
			break
		}

		if ev.Chunk != nil {
			acc.Add(ev.Chunk)
			if ev.Chunk.Model != "" {
				servedModel = ev.Chunk.Model
			}
		}
		if err := sse.data(ev.Raw); err != nil {
			streamErr = err
			h.logger.Info("client went away mid-stream", slog.String("request_id", c.requestID))
			break
		}
	}

	if streamErr == nil {
		if err := sse.done(); err != nil {
			streamErr = err
		}
	}

	result := acc.Finish()
	server.AddLogField(ctx, "served_model", servedModel)
	h.record(ctx, c, result.FinishReason, streamErr)

	h.logger.Info("chat stream completed",
		slog.String("request_id", c.requestID),
		slog.String("requested_model", c.req.Model),
		slog.String("served_model", servedModel),
		slog.String("finish_reason", result.FinishReason),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Duration("duration", time.Since(c.start)),
	)
}

// record writes the interaction log entry. Failures are logged only.
func (h *Handler) record(ctx context.Context, c *call, finishReason string, callErr error) {
	if h.store == nil {
		return
	}

	id := c.requestID
	if id == "" {
		id = uuid.NewString()
	}
	in := &storage.Interaction{
		ID:           "int_" + strings.ReplaceAll(id, "-", ""),
		RequestID:    c.requestID,
		Model:        c.req.Model,
		MessageCount: len(c.req.Messages),
		Streaming:    c.req.Stream,
		RagEnabled:   c.ragEnabled,
		FinishReason: finishReason,
		Status:       storage.InteractionCompleted,
		Duration:     time.Since(c.start),
		CreatedAt:    c.start.UTC(),
	}
	if c.rag != nil {
		in.RagContextLength = c.rag.ContextLength
	}
	if callErr != nil {
		apiErr := codec.ToCanonicalError(callErr)
		in.Status = storage.InteractionFailed
		in.ErrorType = string(apiErr.Type)
		in.ErrorMessage = apiErr.Message
	}

	// The request context may already be cancelled by a departed client.
	if err := h.store.RecordInteraction(context.WithoutCancel(ctx), in); err != nil {
		h.logger.Warn("failed to record interaction",
			slog.String("request_id", c.requestID),
			slog.String("error", err.Error()),
		)
	}
}

// decodeRequest reads and validates the body. The messages field must be a
// JSON array.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*openai.ChatCompletionRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, domain.ErrInvalidRequest("failed to read request body: " + err.Error())
	}

	var probe struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, domain.ErrInvalidRequest("invalid JSON body: " + err.Error())
	}
	trimmed := strings.TrimSpace(string(probe.Messages))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, domain.ErrInvalidRequest("messages array is required").
			WithCode(domain.ErrorCodeMissingMessages).
			WithParam("messages")
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, domain.ErrInvalidRequest("invalid request: " + err.Error()).WithParam("messages")
	}
	return &req, nil
}

// withRagContext re-encodes the upstream body with a _ragContext field, null
// when nothing was injected. Unknown upstream fields survive.
func withRagContext(resp *openai.ChatCompletionResponse, rag *chat.RagContext) ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(resp.RawResponse) > 0 {
		if err := json.Unmarshal(resp.RawResponse, &fields); err != nil {
			return nil, err
		}
	} else {
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
	}

	ragField := json.RawMessage("null")
	if rag.HasContext() {
		data, err := json.Marshal(rag)
		if err != nil {
			return nil, err
		}
		ragField = data
	}
	fields["_ragContext"] = ragField
	return json.Marshal(fields)
}
