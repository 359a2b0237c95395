package frontdoor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// sseWriter writes text/event-stream frames and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// start commits the stream headers. After it the status can no longer change.
func (s *sseWriter) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseWriter) data(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) json(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.data(payload)
}

func (s *sseWriter) done() error {
	return s.data([]byte("[DONE]"))
}

// Write lets codec.WriteStreamError frame its payload directly.
func (s *sseWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.flusher.Flush()
	return n, err
}
