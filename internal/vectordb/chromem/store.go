// Package chromem implements vectordb.Store on the embedded chromem-go
// index, for local development and tests. chromem collections hold a single
// vector per document, so a multimodal logical collection maps to one
// chromem collection per modality.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// metaKey is the reserved chromem metadata entry carrying the JSON-encoded
// passenger payload. chromem metadata values are strings, so the payload is
// round-tripped through JSON to preserve scalar types.
const metaKey = "__meta"

const imageSuffix = "__image"

// Compile-time check: Store implements vectordb.Store.
var _ vectordb.Store = (*Store)(nil)

// Config holds settings for the embedded store.
type Config struct {
	// Path is the persistence directory. Empty means a pure in-memory index.
	Path     string
	Compress bool
}

// Store implements vectordb.Store via chromem-go.
type Store struct {
	db     *chromemgo.DB
	logger *zap.Logger

	mu      sync.Mutex
	schemas map[string]vectordb.Schema // recorded at create time
}

// NewStore creates an embedded store, persistent when cfg.Path is set.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	var db *chromemgo.DB
	if cfg.Path != "" {
		var err error
		db, err = chromemgo.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("create persistent chromem db: %w", err)
		}
	} else {
		db = chromemgo.NewDB()
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      db,
		logger:  logger,
		schemas: make(map[string]vectordb.Schema),
	}, nil
}

// Ping always succeeds: the index lives in-process.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op; chromem persists on write.
func (s *Store) Close() error { return nil }

// CollectionExists reports whether the named collection exists.
func (s *Store) CollectionExists(_ context.Context, name string) (bool, error) {
	return s.db.GetCollection(name, nil) != nil, nil
}

// CreateCollection creates one chromem collection per modality.
func (s *Store) CreateCollection(_ context.Context, schema vectordb.Schema) error {
	if err := schema.Validate(); err != nil {
		return &vectordb.Error{Op: vectordb.OpCreateCollection, Err: err}
	}
	if s.db.GetCollection(schema.Collection, nil) != nil {
		return domain.ErrCollectionExists
	}

	for _, m := range schema.Modalities {
		if _, err := s.db.CreateCollection(collectionName(schema.Collection, m), nil, nil); err != nil {
			return &vectordb.Error{Op: vectordb.OpCreateCollection, Err: err}
		}
	}

	s.mu.Lock()
	s.schemas[schema.Collection] = schema
	s.mu.Unlock()

	s.logger.Info("created embedded collection",
		zap.String("collection", schema.Collection),
		zap.Int("dimension", schema.Dimension),
	)
	return nil
}

// DropCollection removes the collection and its image-side twin.
func (s *Store) DropCollection(_ context.Context, name string) error {
	for _, n := range []string{name, name + imageSuffix} {
		if s.db.GetCollection(n, nil) == nil {
			continue
		}
		if err := s.db.DeleteCollection(n); err != nil {
			return &vectordb.Error{Op: vectordb.OpDropCollection, Err: err}
		}
	}

	s.mu.Lock()
	delete(s.schemas, name)
	s.mu.Unlock()
	return nil
}

// CollectionDimension returns the dimension recorded at create time. A
// collection reloaded from disk without a recorded schema reports 0, which
// the caller treats as "backend cannot verify".
func (s *Store) CollectionDimension(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schema, ok := s.schemas[name]; ok {
		return schema.Dimension, nil
	}
	return 0, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context, name string) (int64, error) {
	col := s.db.GetCollection(name, nil)
	if col == nil {
		return 0, &vectordb.Error{Op: vectordb.OpCount, Err: domain.ErrNotFound}
	}
	return int64(col.Count()), nil
}

// Upsert writes points into each modality's collection. Zero-filled image
// vectors (the missing-image fallback) are skipped on the image side:
// chromem normalizes vectors and a zero vector has no direction.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectordb.Point) error {
	for i := range points {
		p := &points[i]

		meta, err := encodeMeta(p.Payload)
		if err != nil {
			return &vectordb.Error{Op: vectordb.OpUpsert, Err: err}
		}

		for m, vec := range p.Vectors {
			if m == domain.ModalityImage && isZero(vec) {
				continue
			}
			col := s.db.GetCollection(collectionName(collection, m), nil)
			if col == nil {
				return &vectordb.Error{Op: vectordb.OpUpsert, Err: domain.ErrNotFound}
			}
			doc := chromemgo.Document{
				ID:        p.ID,
				Content:   p.Text,
				Metadata:  meta,
				Embedding: vec,
			}
			if err := col.AddDocuments(ctx, []chromemgo.Document{doc}, 1); err != nil {
				return &vectordb.Error{Op: vectordb.OpUpsert, Err: err}
			}
		}
	}
	return nil
}

// Query runs a top-k similarity search. chromem rejects nResults above the
// document count, so the request is clamped; an empty collection yields an
// empty slice.
func (s *Store) Query(ctx context.Context, collection string, q vectordb.KNNQuery) ([]domain.Hit, error) {
	col := s.db.GetCollection(collectionName(collection, q.Modality), nil)
	if col == nil {
		return nil, &vectordb.Error{Op: vectordb.OpQuery, Err: domain.ErrNotFound}
	}

	k := q.TopK
	if n := col.Count(); k > n {
		k = n
	}
	if k == 0 {
		return []domain.Hit{}, nil
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, k, nil, nil)
	if err != nil {
		return nil, &vectordb.Error{Op: vectordb.OpQuery, Err: err}
	}

	hits := make([]domain.Hit, 0, len(results))
	for _, r := range results {
		meta, err := decodeMeta(r.Metadata)
		if err != nil {
			return nil, &vectordb.Error{Op: vectordb.OpQuery, Err: err}
		}
		hits = append(hits, domain.Hit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: meta,
			Score:    float64(r.Similarity),
		})
	}
	return hits, nil
}

func collectionName(base string, m domain.Modality) string {
	if m == domain.ModalityImage {
		return base + imageSuffix
	}
	return base
}

func encodeMeta(payload map[string]any) (map[string]string, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return map[string]string{metaKey: string(data)}, nil
}

func decodeMeta(meta map[string]string) (map[string]any, error) {
	raw, ok := meta[metaKey]
	if !ok || raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
