package kbmatch

import (
	"context"

	"github.com/kailas-cloud/triage/internal/domain"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// VectorStore persists KB entry vectors between runs.
// An empty vector is a failure placeholder and must survive a round trip.
type VectorStore interface {
	Load(ctx context.Context) (map[string][]float32, error)
	Save(ctx context.Context, vectors map[string][]float32) error
}
