package chat

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// Finish reasons reported by a completed pass.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// State is the accumulator lifecycle.
type State int

const (
	StateStreaming State = iota
	StateFinished
)

func (s State) String() string {
	if s == StateFinished {
		return "finished"
	}
	return "streaming"
}

// Result is the outcome of one completion pass.
type Result struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

// HasToolCalls reports whether the pass ended waiting on tool results.
func (r Result) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Accumulator reassembles one completion stream. Text deltas are appended in
// arrival order. Tool call fragments are keyed by their stream index: ids
// and names are set, argument fragments are appended. A call is complete only
// when the stream ends.
//
// An Accumulator serves exactly one pass and is not safe for concurrent use.
type Accumulator struct {
	state        State
	text         strings.Builder
	calls        map[int]*ToolCall
	finishReason string
}

// NewAccumulator returns an accumulator in the streaming state.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*ToolCall)}
}

// State returns the current lifecycle state.
func (a *Accumulator) State() State {
	return a.state
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Add consumes one chunk and returns the accumulated text. A finish reason is
// recorded but does not end the pass; fragments may still follow it.
func (a *Accumulator) Add(chunk *openai.ChatCompletionChunk) string {
	if a.state == StateFinished || chunk == nil || len(chunk.Choices) == 0 {
		return a.text.String()
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != "" {
		a.text.WriteString(choice.Delta.Content)
	}

	for _, frag := range choice.Delta.ToolCalls {
		call, ok := a.calls[frag.Index]
		if !ok {
			call = &ToolCall{Index: frag.Index}
			a.calls[frag.Index] = call
		}
		if frag.ID != "" {
			call.ID = frag.ID
		}
		if frag.Type != "" {
			call.Type = frag.Type
		}
		if frag.Function != nil {
			if frag.Function.Name != "" {
				call.Name = frag.Function.Name
			}
			call.Arguments += frag.Function.Arguments
		}
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		a.finishReason = *choice.FinishReason
	}

	return a.text.String()
}

// Finish ends the pass and returns its result. Tool calls are ordered by
// stream index; calls that never received an id get a local one. Without an
// explicit finish reason the pass reports tool_calls if any call was
// assembled and stop otherwise.
func (a *Accumulator) Finish() Result {
	a.state = StateFinished

	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var calls []ToolCall
	for _, idx := range indexes {
		call := *a.calls[idx]
		if call.ID == "" {
			call.ID = NewToolCallID()
		}
		if call.Type == "" {
			call.Type = toolTypeFunction
		}
		calls = append(calls, call)
	}

	reason := a.finishReason
	if reason == "" {
		if len(calls) > 0 {
			reason = FinishReasonToolCalls
		} else {
			reason = FinishReasonStop
		}
	}

	return Result{
		Text:         a.text.String(),
		ToolCalls:    calls,
		FinishReason: reason,
	}
}

// NewToolCallID synthesizes a tool call id for calls the upstream left blank.
func NewToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EventStream is a source of completion events. Recv returns io.EOF once the
// source is exhausted.
type EventStream interface {
	Recv() (*openai.StreamEvent, error)
	Close() error
}

// StreamCallbacks observe a pass as it streams. Nil fields are skipped.
type StreamCallbacks struct {
	// OnText receives the full accumulated text after every text delta.
	OnText func(text string)
	// OnRagContext receives the out-of-band retrieval event.
	OnRagContext func(rc RagContext)
}

// Consume drives one pass over stream until it is exhausted, closing it on
// every exit path. On error the partial result is discarded.
func Consume(ctx context.Context, stream EventStream, cb StreamCallbacks) (Result, error) {
	defer stream.Close()

	acc := NewAccumulator()
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acc.Finish(), nil
		}
		if err != nil {
			return Result{}, err
		}
		if ev == nil {
			continue
		}

		if ev.RagContext != nil {
			if cb.OnRagContext != nil {
				cb.OnRagContext(RagContext{
					Context:       ev.RagContext.Context,
					ContextLength: ev.RagContext.ContextLength,
					Enabled:       ev.RagContext.Enabled,
				})
			}
			continue
		}

		before := acc.text.Len()
		text := acc.Add(ev.Chunk)
		if cb.OnText != nil && len(text) != before {
			cb.OnText(text)
		}
	}
}
