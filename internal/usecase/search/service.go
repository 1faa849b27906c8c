package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// DefaultTopK is used when the request leaves the result size unset.
const DefaultTopK = 5

// Service handles k-nearest-neighbor queries over either modality.
type Service struct {
	store    Store
	embedder Embedder
	schema   vectordb.Schema
	logger   *zap.Logger
}

// New creates a search service. The schema must carry the resolved dimension.
func New(store Store, embedder Embedder, schema vectordb.Schema, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		schema:   schema,
		logger:   logger,
	}
}

// SearchText embeds the query text and searches the text index.
func (s *Service) SearchText(ctx context.Context, query string, topK int) ([]domain.Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query text: %w", domain.ErrInvalidQuery)
	}

	result, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	return s.SearchVector(ctx, result.Vector, topK, domain.ModalityText)
}

// SearchImage embeds the query image and searches the image index. Unlike
// ingestion there is no zero-vector fallback: a failed embedding fails the
// query.
func (s *Service) SearchImage(ctx context.Context, image []byte, topK int) ([]domain.Hit, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty query image: %w", domain.ErrInvalidQuery)
	}
	if !s.schema.Multimodal() {
		return nil, fmt.Errorf("image search on a text-only collection: %w", domain.ErrInvalidQuery)
	}

	result, err := s.embedder.EmbedImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embed query image: %w", err)
	}

	return s.SearchVector(ctx, result.Vector, topK, domain.ModalityImage)
}

// SearchVector runs a raw top-k query against the given modality's index.
// Hits come back best-first; an empty collection yields an empty slice.
func (s *Service) SearchVector(ctx context.Context, vector []float32, topK int, modality domain.Modality) ([]domain.Hit, error) {
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be at least 1, got %d: %w", topK, domain.ErrInvalidQuery)
	}
	if !modality.Valid() {
		return nil, fmt.Errorf("unknown modality %q: %w", modality, domain.ErrInvalidQuery)
	}
	if modality == domain.ModalityImage && !s.schema.Multimodal() {
		return nil, fmt.Errorf("image search on a text-only collection: %w", domain.ErrInvalidQuery)
	}
	if len(vector) != s.schema.Dimension {
		return nil, domain.NewDimensionMismatch("query_vector", s.schema.Dimension, len(vector))
	}

	hits, err := s.store.Query(ctx, s.schema.Collection, vectordb.KNNQuery{
		Modality: modality,
		Vector:   vector,
		TopK:     topK,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", modality, err)
	}

	s.logger.Debug("Search completed",
		zap.String("modality", string(modality)),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)))

	if hits == nil {
		hits = []domain.Hit{}
	}
	return hits, nil
}
