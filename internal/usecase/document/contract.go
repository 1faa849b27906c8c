package document

import (
	"context"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Store defines the write-path contract against the vector backend.
type Store interface {
	Upsert(ctx context.Context, collection string, points []vectordb.Point) error
	Count(ctx context.Context, name string) (int64, error)
}

// Embedder produces the text vector for documents inserted without one.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
