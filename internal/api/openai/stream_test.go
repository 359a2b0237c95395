package openai

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func newTestStream(body string) (*Stream, *trackingBody) {
	tb := &trackingBody{Reader: strings.NewReader(body)}
	return NewStream(tb), tb
}

func TestStream_SkipsCommentsAndBlankData(t *testing.T) {
	s, _ := newTestStream(": keep-alive\n\nevent: message\ndata:\n\ndata: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\ndata: [DONE]\n\n")

	ev, err := s.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Chunk == nil || ev.Chunk.Choices[0].Delta.Content != "x" {
		t.Errorf("event = %+v", ev)
	}
	if string(ev.Raw) != `{"id":"1","choices":[{"index":0,"delta":{"content":"x"}}]}` {
		t.Errorf("raw = %s", ev.Raw)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestStream_RagContextEvent(t *testing.T) {
	s, _ := newTestStream(`data: {"type":"rag_context","context":"ctx","contextLength":3,"enabled":true}` + "\n\n")

	ev, err := s.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if ev.RagContext == nil || ev.Chunk != nil {
		t.Fatalf("event = %+v", ev)
	}
	if ev.RagContext.Context != "ctx" || ev.RagContext.ContextLength != 3 || !ev.RagContext.Enabled {
		t.Errorf("rag context = %+v", ev.RagContext)
	}
}

func TestStream_InBandError(t *testing.T) {
	s, _ := newTestStream(`data: {"error":{"message":"overloaded","type":"server_error","code":"server_overloaded"}}` + "\n\n" + `data: {"id":"late"}` + "\n\n")

	_, err := s.Recv()
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Message != "overloaded" || apiErr.UpstreamType != "server_error" || apiErr.Code != "server_overloaded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("stream should end after an error chunk, got %v", err)
	}
}

func TestStream_MalformedChunk(t *testing.T) {
	s, _ := newTestStream("data: {oops\n\n")
	if _, err := s.Recv(); err == nil || !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("err = %v", err)
	}
}

func TestStream_TransportEndsWithoutDone(t *testing.T) {
	s, _ := newTestStream(`data: {"id":"1","choices":[]}` + "\n\n")
	if _, err := s.Recv(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	s, body := newTestStream("data: [DONE]\n\n")
	s.Close()
	s.Close()
	if body.closed != 1 {
		t.Errorf("body closed %d times", body.closed)
	}
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Recv after Close = %v", err)
	}
}
