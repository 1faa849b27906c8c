// Package vectordb defines the backend contract for the ANN index service.
// Implementations live in subpackages (qdrant for the managed service,
// chromem for the embedded index).
package vectordb

import (
	"context"
	"errors"

	"github.com/kaleido-search/kaleido/internal/domain"
)

// DistanceMetric selects the similarity function for a vector field.
type DistanceMetric string

const (
	// MetricCosine is cosine similarity (higher score is better).
	MetricCosine DistanceMetric = "cosine"
	// MetricL2 is Euclidean distance (lower score is better).
	MetricL2 DistanceMetric = "l2"
	// MetricDot is inner product (higher score is better).
	MetricDot DistanceMetric = "dot"
)

// HNSWParams are the index build parameters shared by both backends that
// support them. Zero values mean backend defaults.
type HNSWParams struct {
	M           int
	EFConstruct int
}

// Schema binds a collection name to its vector layout. One similarity index
// is created per modality in Modalities.
type Schema struct {
	Collection string
	Dimension  int
	Metric     DistanceMetric
	Modalities []domain.Modality
	HNSW       HNSWParams
	EFSearch   int // query-time fan-out, 0 = backend default
}

// Validate checks that the schema is well-formed.
func (s *Schema) Validate() error {
	if s.Collection == "" {
		return errors.New("collection name is required")
	}
	if s.Dimension <= 0 {
		return errors.New("dimension must be positive")
	}
	if len(s.Modalities) == 0 {
		return errors.New("at least one modality is required")
	}
	seen := make(map[domain.Modality]bool, len(s.Modalities))
	for _, m := range s.Modalities {
		if !m.Valid() {
			return errors.New("unknown modality: " + string(m))
		}
		if seen[m] {
			return errors.New("duplicate modality: " + string(m))
		}
		seen[m] = true
	}
	switch s.Metric {
	case MetricCosine, MetricL2, MetricDot:
	default:
		return errors.New("unknown distance metric: " + string(s.Metric))
	}
	return nil
}

// Multimodal reports whether the schema carries an image vector field.
func (s *Schema) Multimodal() bool {
	for _, m := range s.Modalities {
		if m == domain.ModalityImage {
			return true
		}
	}
	return false
}

// Point is a single record to persist: one vector per modality plus the
// stored text and passenger payload.
type Point struct {
	ID      string
	Text    string
	Vectors map[domain.Modality][]float32
	Payload map[string]any
}

// KNNQuery is the input for a top-k similarity search.
type KNNQuery struct {
	Modality domain.Modality
	Vector   []float32
	TopK     int
}

// CollectionStats describes a collection for health reporting.
type CollectionStats struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Count  int64  `json:"count"`
}

// Store is the backend facade: connection probe, collection lifecycle, and
// the insert/search data path. Implementations must be safe for concurrent
// use; the caller serializes collection creation.
type Store interface {
	// Ping checks backend connectivity without side effects.
	Ping(ctx context.Context) error
	// Close releases the backend session.
	Close() error

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection persists the schema and its per-modality indexes.
	// Returns domain.ErrCollectionExists when a concurrent creator won.
	CreateCollection(ctx context.Context, schema Schema) error
	// DropCollection removes the collection; missing collections are a no-op.
	DropCollection(ctx context.Context, name string) error
	// CollectionDimension returns the stored vector dimension of an existing
	// collection, for the load-time compatibility check.
	CollectionDimension(ctx context.Context, name string) (int, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context, name string) (int64, error)

	// Upsert writes points; an existing ID is overwritten.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Query returns at most q.TopK hits ordered best-first per the schema
	// metric. An empty collection yields an empty slice.
	Query(ctx context.Context, collection string, q KNNQuery) ([]domain.Hit, error)
}
