// Package memory is an in-process Store used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	documents    map[docKey][]storage.Chunk
	indexedAt    map[docKey]time.Time
	interactions []*storage.Interaction
}

type docKey struct {
	studyID string
	source  string
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		documents: make(map[docKey][]storage.Chunk),
		indexedAt: make(map[docKey]time.Time),
	}
}

func (s *Store) ReplaceDocument(ctx context.Context, studyID, source string, chunks []storage.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{studyID, source}
	now := time.Now()
	stored := make([]storage.Chunk, len(chunks))
	for i, c := range chunks {
		s.nextID++
		c.ID = s.nextID
		c.StudyID = studyID
		c.Source = source
		c.CreatedAt = now
		stored[i] = c
	}
	s.documents[key] = stored
	s.indexedAt[key] = now
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, studyID, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey{studyID, source}
	if _, ok := s.documents[key]; !ok {
		return fmt.Errorf("document %s: %w", source, storage.ErrNotFound)
	}
	delete(s.documents, key)
	delete(s.indexedAt, key)
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, studyID string) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []storage.Document
	for key, chunks := range s.documents {
		if studyID != "" && key.studyID != studyID {
			continue
		}
		docs = append(docs, storage.Document{
			StudyID:   key.studyID,
			Source:    key.source,
			Chunks:    len(chunks),
			IndexedAt: s.indexedAt[key],
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs, nil
}

// Search scores chunks by how many query terms they contain.
func (s *Store) Search(ctx context.Context, query string, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	terms := storage.QueryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	return s.rank(opts, func(c storage.Chunk) float64 {
		text := strings.ToLower(c.Text)
		var hits float64
		for _, t := range terms {
			if strings.Contains(text, t) {
				hits++
			}
		}
		return hits
	}), nil
}

func (s *Store) SearchVectors(ctx context.Context, vector []float32, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	return s.rank(opts, func(c storage.Chunk) float64 {
		return storage.CosineSimilarity(vector, c.Embedding)
	}), nil
}

func (s *Store) rank(opts storage.SearchOptions, score func(storage.Chunk) float64) []storage.ScoredChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []storage.ScoredChunk
	for key, chunks := range s.documents {
		if opts.StudyID != "" && key.studyID != opts.StudyID {
			continue
		}
		for _, c := range chunks {
			if sc := score(c); sc > 0 {
				hits = append(hits, storage.ScoredChunk{Chunk: c, Score: sc})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

func (s *Store) RecordInteraction(ctx context.Context, interaction *storage.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}
	cp := *interaction
	s.interactions = append(s.interactions, &cp)
	return nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*storage.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, in := range s.interactions {
		if in.ID == id {
			cp := *in
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("interaction %s: %w", id, storage.ErrNotFound)
}

func (s *Store) ListInteractions(ctx context.Context, opts storage.InteractionListOptions) ([]*storage.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	var out []*storage.Interaction
	for i := len(s.interactions) - 1 - opts.Offset; i >= 0 && len(out) < limit; i-- {
		cp := *s.interactions[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
