package openai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// maxLineSize bounds a single SSE data line.
const maxLineSize = 1024 * 1024

// doneSentinel terminates an SSE completion stream.
const doneSentinel = "[DONE]"

// StreamEvent is one decoded event of a completion stream. Exactly one of
// Chunk or RagContext is set. Raw holds the event payload as received so it
// can be forwarded without re-encoding.
type StreamEvent struct {
	Chunk      *ChatCompletionChunk
	RagContext *RagContextEvent
	Raw        json.RawMessage
}

// Stream reads completion events from a text/event-stream body. It is
// pull-based: each Recv reads the next event from the wire, so an abandoned
// stream holds nothing but the body, which Close releases.
type Stream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an SSE body.
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return &Stream{body: body, scanner: scanner}
}

// eventProbe discriminates event shapes before full decoding.
type eventProbe struct {
	Type  string    `json:"type"`
	Error *APIError `json:"error"`
}

// Recv returns the next event. It returns io.EOF after the [DONE] sentinel or
// when the transport closes. An in-band error chunk is returned as a
// *domain.APIError.
func (s *Stream) Recv() (*StreamEvent, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == doneSentinel {
			s.done = true
			return nil, io.EOF
		}

		raw := json.RawMessage(data)

		var probe eventProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		if probe.Error != nil {
			s.done = true
			return nil, probe.Error.ToCanonical(0)
		}
		if probe.Type == RagContextEventType {
			var rc RagContextEvent
			if err := json.Unmarshal(raw, &rc); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rag context: %w", err)
			}
			return &StreamEvent{RagContext: &rc, Raw: raw}, nil
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		return &StreamEvent{Chunk: &chunk, Raw: raw}, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
