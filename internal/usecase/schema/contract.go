package schema

import (
	"context"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Store defines the schema-management contract against the vector backend.
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, schema vectordb.Schema) error
	DropCollection(ctx context.Context, name string) error
	CollectionDimension(ctx context.Context, name string) (int, error)
}

// Prober produces a sample embedding to discover the model's dimension.
type Prober interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
