package document

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/metrics"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// metaHasImage marks documents stored with a real image vector, so the
// zero-vector fallback can be told apart from genuine embeddings.
const metaHasImage = "has_image"

// Service handles document ingestion. Validation is strict: a vector with
// the wrong dimension rejects the whole document before anything is written.
type Service struct {
	store    Store
	embedder Embedder
	schema   vectordb.Schema
	logger   *zap.Logger
}

// New creates a document service. The schema must carry the resolved
// dimension.
func New(store Store, embedder Embedder, schema vectordb.Schema, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		schema:   schema,
		logger:   logger,
	}
}

// Insert validates, embeds where needed, and persists a single document.
// Returns the stored document ID. Inserting an existing ID overwrites it.
func (s *Service) Insert(ctx context.Context, doc domain.Document) (string, error) {
	doc.Text = domain.TruncateText(doc.Text)

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	if doc.TextVector == nil {
		result, err := s.embedder.EmbedText(ctx, doc.Text)
		if err != nil {
			return "", fmt.Errorf("embed document text: %w", err)
		}
		doc.TextVector = result.Vector
	}

	point, err := s.buildPoint(doc)
	if err != nil {
		return "", err
	}

	if err := s.store.Upsert(ctx, s.schema.Collection, []vectordb.Point{point}); err != nil {
		return "", fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	s.logger.Debug("Document inserted",
		zap.String("id", doc.ID),
		zap.Bool("has_image", doc.HasImage()))

	return doc.ID, nil
}

// Count returns the number of stored documents.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx, s.schema.Collection)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// buildPoint validates vector dimensions and assembles the storage point.
// Nothing is written when any vector fails validation.
func (s *Service) buildPoint(doc domain.Document) (vectordb.Point, error) {
	dim := s.schema.Dimension

	if len(doc.TextVector) != dim {
		return vectordb.Point{}, domain.NewDimensionMismatch("text_vector", dim, len(doc.TextVector))
	}

	vectors := map[domain.Modality][]float32{
		domain.ModalityText: doc.TextVector,
	}

	hasImage := false
	if s.schema.Multimodal() {
		switch {
		case doc.ImageVector == nil:
			// No image supplied: store a zero vector so the point stays
			// addressable on the image index without ranking anywhere.
			vectors[domain.ModalityImage] = domain.ZeroVector(dim)
			metrics.ZeroImageFallbackTotal.Inc()
		case len(doc.ImageVector) != dim:
			return vectordb.Point{}, domain.NewDimensionMismatch("image_vector", dim, len(doc.ImageVector))
		default:
			vectors[domain.ModalityImage] = doc.ImageVector
			hasImage = doc.HasImage()
		}
	} else if doc.ImageVector != nil {
		return vectordb.Point{}, fmt.Errorf("image vector on a text-only collection: %w", domain.ErrInvalidQuery)
	}

	payload := make(map[string]any, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	if s.schema.Multimodal() {
		payload[metaHasImage] = hasImage
	}

	return vectordb.Point{
		ID:      doc.ID,
		Text:    doc.Text,
		Vectors: vectors,
		Payload: payload,
	}, nil
}
