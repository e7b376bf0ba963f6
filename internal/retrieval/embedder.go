// Package retrieval turns text into vectors and vectors into ranked context
// candidates.
package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EmbedClient is the model backend that turns text into a vector.
type EmbedClient interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder wraps an embedding model behind a stable vector-producing
// contract with a fixed dimension.
type Embedder struct {
	client    EmbedClient
	model     string
	dimension int
}

// NewEmbedder creates an Embedder for the given model. dimension is the
// vector size the model is known to produce; vectors of any other size are
// rejected as a backend fault.
func NewEmbedder(client EmbedClient, model string, dimension int) *Embedder {
	return &Embedder{client: client, model: model, dimension: dimension}
}

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, fmt.Errorf("embedding model %s returned dimension %d, want %d", e.model, len(vec), e.dimension)
	}
	return vec, nil
}

// EmbedQuery embeds a search query. Today it is the same operation as Embed;
// the separate name leaves room for asymmetric query/passage encoders.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.Embed(ctx, query)
}

// EmbedBatch returns embedding vectors for multiple texts, order-preserving
// and the same length as the input. Returns nil (not error) for empty input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the model server.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
