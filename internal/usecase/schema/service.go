package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Service manages the collection lifecycle: lazy creation, dimension
// discovery and compatibility checks, and destructive reset.
type Service struct {
	store     Store
	prober    Prober
	schema    vectordb.Schema
	probeText string
	logger    *zap.Logger

	mu        sync.Mutex
	ensured   bool
	dimension int
}

// New creates a schema service. schema.Dimension may be zero; in that case
// the dimension is discovered by probing the embedder on first Ensure.
func New(store Store, prober Prober, schema vectordb.Schema, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		prober:    prober,
		schema:    schema,
		probeText: "dimension probe",
		logger:    logger,
	}
}

// WithProbeText overrides the sample text used for dimension discovery.
func (s *Service) WithProbeText(text string) *Service {
	if text != "" {
		s.probeText = text
	}
	return s
}

// Dimension returns the effective vector dimension. Zero until Ensure has run.
func (s *Service) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

// Schema returns the effective schema with the resolved dimension.
func (s *Service) Schema() vectordb.Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema := s.schema
	schema.Dimension = s.dimension
	return schema
}

// Ensure makes the collection exist with a compatible schema. The call is
// idempotent and serialized; after the first success it is a cheap no-op.
//
// An existing collection whose dimension disagrees with the configured
// embedding model is a fatal misconfiguration: silently serving it would
// corrupt every subsequent insert.
func (s *Service) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}

	exists, err := s.store.CollectionExists(ctx, s.schema.Collection)
	if err != nil {
		return fmt.Errorf("check collection %q: %w: %w", s.schema.Collection, domain.ErrSchemaFailed, err)
	}

	if exists {
		if err := s.adoptExisting(ctx); err != nil {
			return err
		}
		s.ensured = true
		return nil
	}

	if err := s.createNew(ctx); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

// Reset drops the collection and recreates it empty. A missing collection
// is not an error.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.ensured = false
	name := s.schema.Collection
	s.mu.Unlock()

	if err := s.store.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("drop collection %q: %w: %w", name, domain.ErrSchemaFailed, err)
	}

	s.logger.Info("Collection dropped", zap.String("collection", name))

	return s.Ensure(ctx)
}

// adoptExisting loads an existing collection and verifies its dimension
// against the embedding model. s.mu is held.
func (s *Service) adoptExisting(ctx context.Context) error {
	stored, err := s.store.CollectionDimension(ctx, s.schema.Collection)
	if err != nil {
		return fmt.Errorf("read collection %q schema: %w: %w", s.schema.Collection, domain.ErrSchemaFailed, err)
	}

	want, err := s.resolveDimension(ctx)
	if err != nil {
		return err
	}

	// A backend that cannot report the stored dimension (e.g. after a
	// process restart on an embedded store) is taken at face value.
	if stored != 0 && want != 0 && stored != want {
		return fmt.Errorf("collection %q has dimension %d, embedding model produces %d: %w",
			s.schema.Collection, stored, want, domain.ErrSchemaFailed)
	}

	if stored != 0 {
		s.dimension = stored
	} else {
		s.dimension = want
	}

	s.logger.Info("Adopted existing collection",
		zap.String("collection", s.schema.Collection),
		zap.Int("dimension", s.dimension))

	return nil
}

// createNew resolves the dimension and creates the collection. s.mu is held.
func (s *Service) createNew(ctx context.Context) error {
	dim, err := s.resolveDimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("cannot determine vector dimension: %w", domain.ErrSchemaFailed)
	}

	schema := s.schema
	schema.Dimension = dim

	err = s.store.CreateCollection(ctx, schema)
	if errors.Is(err, domain.ErrCollectionExists) {
		// Lost a create race with another instance; adopt theirs.
		s.logger.Warn("Collection appeared concurrently, adopting",
			zap.String("collection", schema.Collection))
		return s.adoptExisting(ctx)
	}
	if err != nil {
		return fmt.Errorf("create collection %q: %w: %w", schema.Collection, domain.ErrSchemaFailed, err)
	}

	s.dimension = dim

	s.logger.Info("Collection created",
		zap.String("collection", schema.Collection),
		zap.Int("dimension", dim),
		zap.Strings("modalities", modalityNames(schema.Modalities)))

	return nil
}

// resolveDimension returns the configured dimension, probing the embedder
// with a sample text when no dimension hint is configured. s.mu is held.
func (s *Service) resolveDimension(ctx context.Context) (int, error) {
	if s.schema.Dimension > 0 {
		return s.schema.Dimension, nil
	}

	result, err := s.prober.EmbedText(ctx, s.probeText)
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w: %w", domain.ErrSchemaFailed, err)
	}
	if len(result.Vector) == 0 {
		return 0, fmt.Errorf("probe returned empty vector: %w", domain.ErrSchemaFailed)
	}

	s.logger.Info("Probed embedding dimension", zap.Int("dimension", len(result.Vector)))

	return len(result.Vector), nil
}

func modalityNames(mods []domain.Modality) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = string(m)
	}
	return names
}
