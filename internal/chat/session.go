package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrSessionBusy is returned when a message is sent while a turn is running.
var ErrSessionBusy = errors.New("session is busy with another message")

// Snapshot is a point-in-time copy of session state for rendering.
type Snapshot struct {
	Messages   []Message
	Streaming  string
	RagContext *RagContext
	Loading    bool
}

// Session owns one conversation. Turns run one at a time; the session may be
// observed from other goroutines through Snapshot and OnChange.
type Session struct {
	// Name labels the session in logs and comparison views.
	Name string
	// OnChange is called after every state change, outside the session lock.
	OnChange func(Snapshot)

	round Round

	mu        sync.Mutex
	messages  []Message
	streaming string
	rag       *RagContext
	loading   bool
	// gen is bumped by Reset so a turn still in flight drops its result.
	gen uint64
}

// NewSession creates a session whose turns run through round. The round's
// callbacks are owned by the session and are overwritten.
func NewSession(name string, round Round) *Session {
	return &Session{Name: name, round: round}
}

// SendMessage appends a user turn and runs the tool-call round to completion.
// Blank input is ignored. On failure the assistant reply becomes
// "Error: <message>" and the error is returned.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.messages = append(s.messages, NewUserMessage(content))
	s.loading = true
	s.streaming = ""
	s.rag = nil
	history := cloneHistory(s.messages)
	gen := s.gen
	s.mu.Unlock()
	s.notify()

	// update applies fn unless the session was reset after this turn began.
	update := func(fn func()) {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		fn()
		s.mu.Unlock()
		s.notify()
	}

	round := s.round
	round.Callbacks = StreamCallbacks{
		OnText: func(text string) {
			update(func() { s.streaming = text })
		},
		OnRagContext: func(rc RagContext) {
			update(func() { s.rag = &rc })
		},
	}

	final, err := round.Run(ctx, history)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		final = append(final, NewAssistantMessage("Error: "+err.Error()))
	}
	s.messages = final
	s.streaming = ""
	s.loading = false
	s.mu.Unlock()
	s.notify()

	return err
}

// Reset clears the conversation. A running turn is not interrupted, but its
// result is discarded when it finishes.
func (s *Session) Reset() {
	s.mu.Lock()
	s.gen++
	s.messages = nil
	s.streaming = ""
	s.rag = nil
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Messages:  cloneHistory(s.messages),
		Streaming: s.streaming,
		Loading:   s.loading,
	}
	if s.rag != nil {
		rc := *s.rag
		snap.RagContext = &rc
	}
	return snap
}

func (s *Session) notify() {
	if s.OnChange != nil {
		s.OnChange(s.Snapshot())
	}
}

// Compare sends the same prompt to every session concurrently and waits for
// all of them. A failing session does not cancel the others; the first error
// is returned.
func Compare(ctx context.Context, prompt string, sessions ...*Session) error {
	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			return s.SendMessage(ctx, prompt)
		})
	}
	return g.Wait()
}
