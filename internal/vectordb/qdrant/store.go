// Package qdrant implements vectordb.Store against a managed Qdrant
// deployment over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// payload keys reserved by the store; everything else in a point payload is
// passenger metadata.
const (
	payloadText = "text"
	payloadMeta = "metadata"
	payloadID   = "id"
)

// Compile-time check: Store implements vectordb.Store.
var _ vectordb.Store = (*Store)(nil)

// Config holds connection parameters for a Qdrant store.
type Config struct {
	Host   string
	Port   int // gRPC port, not the HTTP REST port
	APIKey string
	UseTLS bool
}

// Store implements vectordb.Store via the official Qdrant gRPC client.
type Store struct {
	client   *qdrant.Client
	logger   *zap.Logger
	efSearch int
}

// NewStore creates a Qdrant store. The gRPC connection is lazy; reachability
// is verified by the caller via Ping.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}, nil
}

// WithEFSearch sets the query-time HNSW fan-out applied to every search.
func (s *Store) WithEFSearch(ef int) *Store {
	if ef > 0 {
		s.efSearch = ef
	}
	return s
}

// Ping checks backend connectivity via the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return &vectordb.Error{Op: vectordb.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// CollectionExists reports whether the named collection exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, &vectordb.Error{Op: vectordb.OpCollectionExists, Err: err}
	}
	return exists, nil
}

// CreateCollection creates the collection with one named vector field per
// modality. A concurrent creator winning the race surfaces as
// domain.ErrCollectionExists so the caller can fall back to load.
func (s *Store) CreateCollection(ctx context.Context, schema vectordb.Schema) error {
	if err := schema.Validate(); err != nil {
		return &vectordb.Error{Op: vectordb.OpCreateCollection, Err: err}
	}

	params := make(map[string]*qdrant.VectorParams, len(schema.Modalities))
	for _, m := range schema.Modalities {
		params[string(m)] = &qdrant.VectorParams{
			Size:     uint64(schema.Dimension),
			Distance: distanceOf(schema.Metric),
		}
	}

	req := &qdrant.CreateCollection{
		CollectionName: schema.Collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(params),
	}
	if schema.HNSW.M > 0 || schema.HNSW.EFConstruct > 0 {
		hnsw := &qdrant.HnswConfigDiff{}
		if schema.HNSW.M > 0 {
			hnsw.M = qdrant.PtrOf(uint64(schema.HNSW.M))
		}
		if schema.HNSW.EFConstruct > 0 {
			hnsw.EfConstruct = qdrant.PtrOf(uint64(schema.HNSW.EFConstruct))
		}
		req.HnswConfig = hnsw
	}

	if err := s.client.CreateCollection(ctx, req); err != nil {
		if isAlreadyExists(err) {
			return domain.ErrCollectionExists
		}
		return &vectordb.Error{Op: vectordb.OpCreateCollection, Err: err}
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", schema.Collection),
		zap.Int("dimension", schema.Dimension),
		zap.String("metric", string(schema.Metric)),
	)
	return nil
}

// DropCollection removes the collection. Missing collections are a no-op.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		if status.Code(err) == grpccodes.NotFound {
			return nil
		}
		return &vectordb.Error{Op: vectordb.OpDropCollection, Err: err}
	}
	return nil
}

// CollectionDimension reads the stored vector size of an existing collection.
func (s *Store) CollectionDimension(ctx context.Context, name string) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, &vectordb.Error{Op: vectordb.OpCollectionInfo, Err: err}
	}

	vc := info.GetConfig().GetParams().GetVectorsConfig()
	if vc == nil {
		return 0, &vectordb.Error{Op: vectordb.OpCollectionInfo, Err: fmt.Errorf("collection %s has no vectors config", name)}
	}

	// Single unnamed vector field
	if p := vc.GetParams(); p != nil {
		return int(p.GetSize()), nil
	}
	// Named vector fields share one dimension; prefer the text field.
	m := vc.GetParamsMap().GetMap()
	if p, ok := m[string(domain.ModalityText)]; ok {
		return int(p.GetSize()), nil
	}
	for _, p := range m {
		return int(p.GetSize()), nil
	}
	return 0, &vectordb.Error{Op: vectordb.OpCollectionInfo, Err: fmt.Errorf("collection %s has no vector fields", name)}
}

// Count returns the exact number of stored points.
func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &vectordb.Error{Op: vectordb.OpCount, Err: err}
	}
	return int64(n), nil
}

// Upsert writes points with Wait=true so data is durable before returning.
func (s *Store) Upsert(ctx context.Context, collection string, points []vectordb.Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i := range points {
		qp, err := toPointStruct(&points[i])
		if err != nil {
			return &vectordb.Error{Op: vectordb.OpUpsert, Err: err}
		}
		qpoints[i] = qp
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return &vectordb.Error{Op: vectordb.OpUpsert, Err: err}
	}
	return nil
}

// Query runs a top-k similarity search against the named vector field for
// the requested modality.
func (s *Store) Query(ctx context.Context, collection string, q vectordb.KNNQuery) ([]domain.Hit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Using:          qdrant.PtrOf(string(q.Modality)),
		Limit:          qdrant.PtrOf(uint64(q.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if s.efSearch > 0 {
		req.Params = &qdrant.SearchParams{HnswEf: qdrant.PtrOf(uint64(s.efSearch))}
	}

	scored, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, &vectordb.Error{Op: vectordb.OpQuery, Err: err}
	}

	hits := make([]domain.Hit, 0, len(scored))
	for _, p := range scored {
		hits = append(hits, hitFromScored(p))
	}
	return hits, nil
}

func distanceOf(m vectordb.DistanceMetric) qdrant.Distance {
	switch m {
	case vectordb.MetricL2:
		return qdrant.Distance_Euclid
	case vectordb.MetricDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// isAlreadyExists matches the backend's duplicate-collection failure.
func isAlreadyExists(err error) bool {
	if status.Code(err) == grpccodes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// toPointStruct converts a vectordb.Point. Qdrant point IDs must be numeric
// or UUID; an arbitrary caller ID is kept in the payload and mapped to a
// deterministic UUID on the wire, so re-inserting the same ID overwrites.
func toPointStruct(p *vectordb.Point) (*qdrant.PointStruct, error) {
	vectors := make(map[string]*qdrant.Vector, len(p.Vectors))
	for m, v := range p.Vectors {
		vectors[string(m)] = qdrant.NewVector(v...)
	}

	payload := map[string]any{
		payloadText: p.Text,
		payloadID:   p.ID,
	}
	if len(p.Payload) > 0 {
		payload[payloadMeta] = p.Payload
	}

	var id *qdrant.PointId
	if _, err := uuid.Parse(p.ID); err == nil {
		id = qdrant.NewIDUUID(p.ID)
	} else {
		id = qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.ID)).String())
	}

	return &qdrant.PointStruct{
		Id:      id,
		Vectors: qdrant.NewVectorsMap(vectors),
		Payload: qdrant.NewValueMap(payload),
	}, nil
}

func hitFromScored(p *qdrant.ScoredPoint) domain.Hit {
	hit := domain.Hit{Score: float64(p.GetScore())}

	payload := p.GetPayload()
	if payload == nil {
		return hit
	}
	if v, ok := payload[payloadID]; ok {
		hit.ID = v.GetStringValue()
	}
	if v, ok := payload[payloadText]; ok {
		hit.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadMeta]; ok {
		if sv := v.GetStructValue(); sv != nil {
			hit.Metadata = structToMap(sv)
		}
	}
	return hit
}

// structToMap converts a qdrant payload struct into plain Go values.
func structToMap(s *qdrant.Struct) map[string]any {
	out := make(map[string]any, len(s.GetFields()))
	for k, v := range s.GetFields() {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, valueToAny(item))
		}
		return out
	case *qdrant.Value_StructValue:
		return structToMap(kind.StructValue)
	default:
		return nil
	}
}
