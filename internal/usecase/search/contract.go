package search

import (
	"context"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Store defines the read-path contract against the vector backend.
type Store interface {
	Query(ctx context.Context, collection string, q vectordb.KNNQuery) ([]domain.Hit, error)
}

// Embedder turns query text or image bytes into query vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error)
}
