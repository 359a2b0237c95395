package rag

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultEmbedBatch     = 64
	embedConcurrency      = 4
)

// OpenAIEmbedder embeds through the OpenAI embeddings endpoint. Inputs are
// sent in batches, a few batches at a time.
type OpenAIEmbedder struct {
	Client    *openai.Client
	Model     string
	BatchSize int
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := e.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	batch := e.BatchSize
	if batch <= 0 {
		batch = defaultEmbedBatch
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		g.Go(func() error {
			resp, err := e.Client.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
				Model: model,
				Input: texts[start:end],
			})
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(resp.Data) != end-start {
				return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(resp.Data))
			}
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= end-start {
					return fmt.Errorf("embed batch %d-%d: index %d out of range", start, end, d.Index)
				}
				out[start+d.Index] = d.Embedding
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
