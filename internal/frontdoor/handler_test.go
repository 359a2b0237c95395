package frontdoor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage/memory"
)

type stubRetriever struct {
	mu       sync.Mutex
	passages []rag.Passage
	err      error
	queries  []string
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, _ int) ([]rag.Passage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.passages, s.err
}

func (s *stubRetriever) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// upstream is a fake completion API that records the last request body.
type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	last map[string]any
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("upstream decode: %v", err)
		}
		u.mu.Lock()
		u.last = body
		u.mu.Unlock()
		handler(w, body)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) lastBody() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

func sseChunks(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func textChunk(text string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, text)
}

func newTestHandler(u *upstream, retriever chat.Retriever, opts ...Option) *Handler {
	client := openai.NewClient("sk-test", openai.WithBaseURL(u.URL))
	var gate *chat.Gate
	if retriever != nil {
		gate = &chat.Gate{Retriever: retriever}
	}
	return NewHandler(client, gate, opts...)
}

func post(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func dataLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(nil, nil)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/chat", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != "POST, OPTIONS" {
			t.Errorf("%s: Allow = %q", method, got)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type = %q, want application/json", method, ct)
		}
		var body struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: body %q is not JSON: %v", method, rec.Body.String(), err)
		}
		if body.Error.Message != "Method Not Allowed" || body.Error.Type != "method_not_allowed" {
			t.Errorf("%s: error = %+v", method, body.Error)
		}
	}
}

func TestHandler_MissingCredentials(t *testing.T) {
	rec := post(NewHandler(nil, nil), "/chat", `{"messages":[]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OPENAI_API_KEY not configured") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandler_BadMessages(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		t.Error("upstream must not be called")
	})
	h := newTestHandler(u, nil)

	for _, body := range []string{
		`{}`,
		`{"messages":null}`,
		`{"messages":"hello"}`,
		`{"messages":{"role":"user"}}`,
		`not json`,
		`{"messages":[{"role":"user","content":42}]}`,
	} {
		rec := post(h, "/chat", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHandler_StreamPassThrough(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("Hi"), textChunk(" there"))
	})
	h := newTestHandler(u, nil)

	rec := post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"hello"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := dataLines(rec.Body.String())
	if len(lines) != 3 {
		t.Fatalf("got %d data lines, want 3: %q", len(lines), lines)
	}
	for i, want := range []string{"Hi", " there"} {
		var chunk openai.ChatCompletionChunk
		if err := json.Unmarshal([]byte(lines[i]), &chunk); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got := chunk.Choices[0].Delta.Content; got != want {
			t.Errorf("line %d content = %q, want %q", i, got, want)
		}
	}
	if lines[2] != "[DONE]" {
		t.Errorf("last line = %q, want [DONE]", lines[2])
	}

	if model := u.lastBody()["model"]; model != DefaultModel {
		t.Errorf("upstream model = %v, want default", model)
	}
}

func TestHandler_StreamWithRagContext(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("ok"))
	})
	r := &stubRetriever{passages: []rag.Passage{{Text: "Walk daily.", Source: "guide.pdf", ChunkIndex: 2}}}
	h := newTestHandler(u, r)

	body := `{"model":"gpt-4o","stream":true,"messages":[
		{"role":"system","content":"persona"},
		{"role":"user","content":[{"type":"text","text":"how"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"to recover?"}]}
	]}`
	rec := post(h, "/chat", body)

	lines := dataLines(rec.Body.String())
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	var ev openai.RagContextEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatal(err)
	}
	wantCtx := "[Document: guide.pdf | Chunk 2]\nWalk daily."
	if ev.Type != "rag_context" || ev.Context != wantCtx || ev.ContextLength != len(wantCtx) || !ev.Enabled {
		t.Errorf("rag event = %+v", ev)
	}
	if r.queries[0] != "how to recover?" {
		t.Errorf("query = %q", r.queries[0])
	}

	msgs := u.lastBody()["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("upstream got %d messages, want 3", len(msgs))
	}
	injected := msgs[1].(map[string]any)
	if injected["role"] != "system" || injected["content"] != chat.ContextLabel+wantCtx {
		t.Errorf("injected = %v", injected)
	}
	if _, ok := msgs[2].(map[string]any)["content"].([]any); !ok {
		t.Errorf("structured user content was not forwarded as-is: %v", msgs[2])
	}
}

func TestHandler_ContextOutputDisabled(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("ok"))
	})
	r := &stubRetriever{passages: []rag.Passage{{Text: "x", Source: "a"}}}
	h := newTestHandler(u, r, WithContextOutput(false))

	lines := dataLines(post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`).Body.String())
	if len(lines) != 2 || strings.Contains(lines[0], "rag_context") {
		t.Errorf("lines = %q", lines)
	}
	if n := len(u.lastBody()["messages"].([]any)); n != 2 {
		t.Errorf("context should still be injected upstream, got %d messages", n)
	}
}

func TestHandler_RagDisabledByQuery(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("ok"))
	})
	r := &stubRetriever{passages: []rag.Passage{{Text: "x", Source: "a"}}}
	h := newTestHandler(u, r)

	post(h, "/chat?ragEnabled=false", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`)
	if r.calls() != 0 {
		t.Errorf("retriever called %d times, want 0", r.calls())
	}
	if n := len(u.lastBody()["messages"].([]any)); n != 1 {
		t.Errorf("upstream messages = %d, want 1", n)
	}
}

func TestHandler_RetrievalFailureDoesNotFailTurn(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("ok"))
	})
	h := newTestHandler(u, &stubRetriever{err: errors.New("index offline")})

	rec := post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if lines := dataLines(rec.Body.String()); len(lines) != 2 {
		t.Errorf("lines = %q", lines)
	}
}

func TestHandler_NonStreaming(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-9","object":"chat.completion","created":1,"model":"gpt-4o-mini","service_tier":"default",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	})

	t.Run("with context", func(t *testing.T) {
		r := &stubRetriever{passages: []rag.Passage{{Text: "ctx", Source: "a.pdf"}}}
		rec := post(newTestHandler(u, r), "/chat", `{"messages":[{"role":"user","content":"q"}],"metadata":{"k":"v"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}

		var got map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got["service_tier"] != "default" {
			t.Errorf("upstream field dropped: %v", got)
		}
		rc, ok := got["_ragContext"].(map[string]any)
		if !ok {
			t.Fatalf("_ragContext = %v", got["_ragContext"])
		}
		if rc["enabled"] != true || rc["context"] != "[Document: a.pdf | Chunk 0]\nctx" {
			t.Errorf("_ragContext = %v", rc)
		}

		if meta, ok := u.lastBody()["metadata"].(map[string]any); !ok || meta["k"] != "v" {
			t.Errorf("extra request field not forwarded: %v", u.lastBody())
		}
	})

	t.Run("without context", func(t *testing.T) {
		rec := post(newTestHandler(u, nil), "/chat", `{"messages":[{"role":"user","content":"q"}]}`)
		var got map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		v, ok := got["_ragContext"]
		if !ok || v != nil {
			t.Errorf("_ragContext = %v (present %v), want null", v, ok)
		}
	})
}

func TestHandler_UpstreamErrorBeforeStream(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded","param":null}}`)
	})
	store := memory.New()
	h := newTestHandler(u, nil, WithInteractionStore(store))

	rec := post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Error["type"] != "requests" || got.Error["code"] != "rate_limit_exceeded" || got.Error["message"] != "Rate limit reached" {
		t.Errorf("error = %v", got.Error)
	}

	list, err := store.ListInteractions(context.Background(), storage.InteractionListOptions{})
	if err != nil || len(list) != 1 {
		t.Fatalf("interactions = %v, %v", list, err)
	}
	if list[0].Status != storage.InteractionFailed || !list[0].Streaming {
		t.Errorf("interaction = %+v", list[0])
	}
}

func TestHandler_MidStreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", textChunk("partial"))
		fmt.Fprint(w, `data: {"error":{"message":"The server had an error","type":"server_error"}}`+"\n\n")
	})
	h := newTestHandler(u, nil)

	rec := post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 once streaming began", rec.Code)
	}
	lines := dataLines(rec.Body.String())
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[1], `"type":"server_error"`) || !strings.Contains(lines[1], "The server had an error") {
		t.Errorf("error chunk = %s", lines[1])
	}
	if lines[2] != "[DONE]" {
		t.Errorf("last = %q", lines[2])
	}
}

func TestHandler_TruncatedStreamReportsStreamError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json\n\n")
	})
	h := newTestHandler(u, nil)

	lines := dataLines(post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"}]}`).Body.String())
	if len(lines) != 2 || !strings.Contains(lines[0], `"type":"stream_error"`) || lines[1] != "[DONE]" {
		t.Errorf("lines = %q", lines)
	}
}

func TestHandler_RecordsInteraction(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ map[string]any) {
		sseChunks(w, textChunk("Hi"),
			`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`)
	})
	store := memory.New()
	r := &stubRetriever{passages: []rag.Passage{{Text: "ctx", Source: "a"}}}
	h := newTestHandler(u, r, WithInteractionStore(store))

	post(h, "/chat", `{"stream":true,"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"},{"role":"user","content":"q2"}]}`)

	list, err := store.ListInteractions(context.Background(), storage.InteractionListOptions{})
	if err != nil || len(list) != 1 {
		t.Fatalf("interactions = %v, %v", list, err)
	}
	in := list[0]
	if in.Status != storage.InteractionCompleted || in.FinishReason != "stop" || !in.RagEnabled {
		t.Errorf("interaction = %+v", in)
	}
	if in.MessageCount != 4 || in.RagContextLength == 0 {
		t.Errorf("counts = %d messages, %d context", in.MessageCount, in.RagContextLength)
	}
	if r.queries[0] != "q2" {
		t.Errorf("query = %q, want latest user message", r.queries[0])
	}
}

func TestRoutes(t *testing.T) {
	routes := Routes(NewHandler(nil, nil), "/api")
	if len(routes) != 2 || routes[0].Path != "/api/chat" || routes[1].Path != "/api/v1/chat/completions" {
		t.Errorf("routes = %+v", routes)
	}
}
