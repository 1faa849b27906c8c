package chromem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s
}

func testSchema(dim int) vectordb.Schema {
	return vectordb.Schema{
		Collection: "documents",
		Dimension:  dim,
		Metric:     vectordb.MetricCosine,
		Modalities: []domain.Modality{domain.ModalityText, domain.ModalityImage},
	}
}

func mustCreate(t *testing.T, s *Store, schema vectordb.Schema) {
	t.Helper()
	if err := s.CreateCollection(context.Background(), schema); err != nil {
		t.Fatalf("create collection: %v", err)
	}
}

func textPoint(id string, vec []float32) vectordb.Point {
	return vectordb.Point{
		ID:   id,
		Text: "text for " + id,
		Vectors: map[domain.Modality][]float32{
			domain.ModalityText: vec,
		},
	}
}

func TestCreateCollection_Duplicate(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))

	err := s.CreateCollection(context.Background(), testSchema(3))
	if !errors.Is(err, domain.ErrCollectionExists) {
		t.Fatalf("expected ErrCollectionExists, got %v", err)
	}
}

func TestCollectionExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.CollectionExists(ctx, "documents")
	if err != nil || exists {
		t.Fatalf("expected missing collection, got exists=%v err=%v", exists, err)
	}

	mustCreate(t, s, testSchema(3))

	exists, err = s.CollectionExists(ctx, "documents")
	if err != nil || !exists {
		t.Fatalf("expected collection, got exists=%v err=%v", exists, err)
	}
}

func TestCollectionDimension_Recorded(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(7))

	dim, err := s.CollectionDimension(context.Background(), "documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dim != 7 {
		t.Fatalf("dimension = %d, want 7", dim)
	}
}

func TestQuery_SelfRetrieval(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	target := []float32{0.1, 0.9, 0.2}
	points := []vectordb.Point{
		textPoint("target", target),
		textPoint("other-1", []float32{0.9, 0.1, 0.1}),
		textPoint("other-2", []float32{0.2, 0.2, 0.9}),
	}
	if err := s.Upsert(ctx, "documents", points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   target,
		TopK:     1,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "target" {
		t.Fatalf("expected self-retrieval, got %v", hits)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-4 {
		t.Fatalf("self-similarity = %v, want ~1.0", hits[0].Score)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))

	hits, err := s.Query(context.Background(), "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   []float32{1, 0, 0},
		TopK:     5,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty slice, got %#v", hits)
	}
}

func TestQuery_TopKOrderingAndScoreRange(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	// Ten vectors at increasing angle from the query axis.
	points := make([]vectordb.Point, 10)
	for i := range points {
		points[i] = textPoint(fmt.Sprintf("doc-%d", i), []float32{1, float32(i) * 0.25, 0})
	}
	if err := s.Upsert(ctx, "documents", points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   []float32{1, 0, 0},
		TopK:     3,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "doc-0" {
		t.Fatalf("best hit = %s, want doc-0", hits[0].ID)
	}
	for i, h := range hits {
		if h.Score < -1.0001 || h.Score > 1.0001 {
			t.Fatalf("score out of cosine range: %v", h.Score)
		}
		if i > 0 && h.Score > hits[i-1].Score {
			t.Fatalf("hits not sorted descending: %v", hits)
		}
	}
}

func TestQuery_TopKClampedToCount(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	if err := s.Upsert(ctx, "documents", []vectordb.Point{
		textPoint("only", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   []float32{1, 0, 0},
		TopK:     50,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestUpsert_SameIDOverwrites(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	if err := s.Upsert(ctx, "documents", []vectordb.Point{
		textPoint("doc", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert(ctx, "documents", []vectordb.Point{
		textPoint("doc", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := s.Count(ctx, "documents")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   []float32{0, 1, 0},
		TopK:     1,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if math.Abs(hits[0].Score-1.0) > 1e-4 {
		t.Fatalf("expected overwritten vector, score = %v", hits[0].Score)
	}
}

func TestUpsert_MetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	p := textPoint("doc", []float32{1, 0, 0})
	p.Payload = map[string]any{
		"source":    "unit",
		"rank":      float64(3),
		"published": true,
	}
	if err := s.Upsert(ctx, "documents", []vectordb.Point{p}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityText,
		Vector:   []float32{1, 0, 0},
		TopK:     1,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	meta := hits[0].Metadata
	if meta["source"] != "unit" || meta["rank"] != float64(3) || meta["published"] != true {
		t.Fatalf("metadata lost in round-trip: %v", meta)
	}
}

func TestUpsert_ZeroImageVectorSkipped(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	p := vectordb.Point{
		ID:   "doc",
		Text: "text",
		Vectors: map[domain.Modality][]float32{
			domain.ModalityText:  {1, 0, 0},
			domain.ModalityImage: {0, 0, 0},
		},
	}
	if err := s.Upsert(ctx, "documents", []vectordb.Point{p}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The text side has the document; the image side must not.
	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityImage,
		Vector:   []float32{1, 0, 0},
		TopK:     5,
	})
	if err != nil {
		t.Fatalf("image query: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("zero image vector must not be indexed, got %v", hits)
	}
}

func TestQuery_ImageModality(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	p := vectordb.Point{
		ID:   "doc",
		Text: "text",
		Vectors: map[domain.Modality][]float32{
			domain.ModalityText:  {1, 0, 0},
			domain.ModalityImage: {0, 1, 0},
		},
	}
	if err := s.Upsert(ctx, "documents", []vectordb.Point{p}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := s.Query(ctx, "documents", vectordb.KNNQuery{
		Modality: domain.ModalityImage,
		Vector:   []float32{0, 1, 0},
		TopK:     1,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "doc" {
		t.Fatalf("expected image hit, got %v", hits)
	}
}

func TestDropCollection_RemovesBothSides(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	if err := s.Upsert(ctx, "documents", []vectordb.Point{
		textPoint("doc", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.DropCollection(ctx, "documents"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	exists, _ := s.CollectionExists(ctx, "documents")
	if exists {
		t.Fatal("collection must be gone after drop")
	}

	// Recreate and verify it comes back empty.
	mustCreate(t, s, testSchema(3))
	count, err := s.Count(ctx, "documents")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after reset = %d, want 0", count)
	}
}

func TestDropCollection_MissingIsNoOp(t *testing.T) {
	s := newTestStore(t)

	if err := s.DropCollection(context.Background(), "never-created"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestUpsert_Concurrent(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, testSchema(3))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := textPoint(fmt.Sprintf("doc-%d", i), []float32{1, float32(i) * 0.01, 0})
			errs <- s.Upsert(ctx, "documents", []vectordb.Point{p})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}

	count, err := s.Count(ctx, "documents")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Fatalf("count = %d, want %d", count, n)
	}
}
