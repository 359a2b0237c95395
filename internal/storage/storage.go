// Package storage defines the persistence contracts for the document index
// and the interaction log.
package storage

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Chunk is one indexed window of a document.
type Chunk struct {
	ID        int64
	StudyID   string
	Source    string
	Index     int
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Document summarizes the chunks indexed for one source file.
type Document struct {
	StudyID   string
	Source    string
	Chunks    int
	IndexedAt time.Time
}

// ScoredChunk is a search hit. Higher scores rank first.
type ScoredChunk struct {
	Chunk
	Score float64
}

// SearchOptions scopes a search.
type SearchOptions struct {
	StudyID string
	Limit   int
}

// DocumentStore persists document chunks and answers relevance queries.
//
// ReplaceDocument swaps every chunk of a source atomically: a concurrent
// search sees either the old chunks or the new ones, never a mix or a gap.
type DocumentStore interface {
	ReplaceDocument(ctx context.Context, studyID, source string, chunks []Chunk) error
	DeleteDocument(ctx context.Context, studyID, source string) error
	ListDocuments(ctx context.Context, studyID string) ([]Document, error)
	Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredChunk, error)
	SearchVectors(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredChunk, error)
	Close() error
}

// Interaction status values.
const (
	InteractionCompleted = "completed"
	InteractionFailed    = "failed"
)

// Interaction records one proxied chat call.
type Interaction struct {
	ID               string
	RequestID        string
	Model            string
	MessageCount     int
	Streaming        bool
	RagEnabled       bool
	RagContextLength int
	FinishReason     string
	Status           string
	ErrorType        string
	ErrorMessage     string
	Duration         time.Duration
	CreatedAt        time.Time
}

// InteractionListOptions pages through the interaction log, newest first.
type InteractionListOptions struct {
	Limit  int
	Offset int
}

// InteractionStore persists the interaction log.
type InteractionStore interface {
	RecordInteraction(ctx context.Context, interaction *Interaction) error
	GetInteraction(ctx context.Context, id string) (*Interaction, error)
	ListInteractions(ctx context.Context, opts InteractionListOptions) ([]*Interaction, error)
}

// Store is the full persistence surface used by the proxy.
type Store interface {
	DocumentStore
	InteractionStore
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the vectors differ in length or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// QueryTerms splits free text into lowercase search terms.
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
