package chat

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// fakeStream replays a fixed list of events, then an optional error or EOF.
type fakeStream struct {
	events []*openai.StreamEvent
	err    error
	pos    int
	closed bool
}

func (f *fakeStream) Recv() (*openai.StreamEvent, error) {
	if f.pos < len(f.events) {
		ev := f.events[f.pos]
		f.pos++
		return ev, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, io.EOF
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

// scriptedCompleter answers each Stream call with the next scripted stream.
type scriptedCompleter struct {
	mu       sync.Mutex
	streams  []*fakeStream
	requests []*openai.ChatCompletionRequest
}

func (c *scriptedCompleter) Stream(_ context.Context, req *openai.ChatCompletionRequest) (EventStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.requests) > len(c.streams) {
		return nil, errors.New("unexpected completion call")
	}
	return c.streams[len(c.requests)-1], nil
}

func (c *scriptedCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type toolInvocation struct {
	name string
	args map[string]any
}

type recordingExecutor struct {
	mu     sync.Mutex
	calls  []toolInvocation
	result string
}

func (e *recordingExecutor) Execute(_ context.Context, name string, args map[string]any) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, toolInvocation{name: name, args: args})
	return e.result
}

func textEvent(s string) *openai.StreamEvent {
	return &openai.StreamEvent{Chunk: &openai.ChatCompletionChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{Content: s}}},
	}}
}

func finishEvent(reason string) *openai.StreamEvent {
	return &openai.StreamEvent{Chunk: &openai.ChatCompletionChunk{
		Choices: []openai.ChunkChoice{{FinishReason: &reason}},
	}}
}

func toolEvent(index int, id, name, args string) *openai.StreamEvent {
	return &openai.StreamEvent{Chunk: &openai.ChatCompletionChunk{
		Choices: []openai.ChunkChoice{{Delta: openai.ChunkDelta{
			ToolCalls: []openai.ToolCallChunk{{
				Index:    index,
				ID:       id,
				Function: &openai.FunctionCallChunk{Name: name, Arguments: args},
			}},
		}}},
	}}
}

func strPtr(s string) *string { return &s }
