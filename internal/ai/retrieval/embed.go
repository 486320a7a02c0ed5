package retrieval

import (
	"context"
	"fmt"
)

type embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Embedder adapts a batch embedding client to EmbedFunc.
type Embedder struct {
	client embedder
}

func NewEmbedder(client embedder) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("expected one embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}
