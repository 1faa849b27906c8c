package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

type mockStore struct {
	hits    []domain.Hit
	err     error
	lastQ   vectordb.KNNQuery
	queries int
}

func (m *mockStore) Query(_ context.Context, _ string, q vectordb.KNNQuery) ([]domain.Hit, error) {
	m.queries++
	m.lastQ = q
	return m.hits, m.err
}

type mockEmbedder struct {
	textVec  []float32
	imageVec []float32
	err      error
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.textVec}, nil
}

func (m *mockEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.imageVec}, nil
}

func newTestService(t *testing.T, store *mockStore, emb *mockEmbedder, multimodal bool) *Service {
	t.Helper()
	mods := []domain.Modality{domain.ModalityText}
	if multimodal {
		mods = append(mods, domain.ModalityImage)
	}
	schema := vectordb.Schema{
		Collection: "documents",
		Dimension:  4,
		Metric:     vectordb.MetricCosine,
		Modalities: mods,
	}
	return New(store, emb, schema, zap.NewNop())
}

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestSearchVector_HappyPath(t *testing.T) {
	store := &mockStore{hits: []domain.Hit{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.7},
	}}
	svc := newTestService(t, store, &mockEmbedder{}, true)

	hits, err := svc.SearchVector(context.Background(), vec(4, 0.1), 2, domain.ModalityText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" {
		t.Fatalf("unexpected hits: %v", hits)
	}
	if store.lastQ.TopK != 2 || store.lastQ.Modality != domain.ModalityText {
		t.Fatalf("unexpected query: %+v", store.lastQ)
	}
}

func TestSearchVector_ZeroTopKDefaults(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, store, &mockEmbedder{}, true)

	if _, err := svc.SearchVector(context.Background(), vec(4, 0.1), 0, domain.ModalityText); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQ.TopK != DefaultTopK {
		t.Fatalf("TopK = %d, want default %d", store.lastQ.TopK, DefaultTopK)
	}
}

func TestSearchVector_NegativeTopK(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockEmbedder{}, true)

	_, err := svc.SearchVector(context.Background(), vec(4, 0.1), -1, domain.ModalityText)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchVector_WrongDimension(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(t, store, &mockEmbedder{}, true)

	_, err := svc.SearchVector(context.Background(), vec(3, 0.1), 2, domain.ModalityText)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if store.queries != 0 {
		t.Fatal("backend must not be queried on a dimension mismatch")
	}
}

func TestSearchVector_UnknownModality(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockEmbedder{}, true)

	_, err := svc.SearchVector(context.Background(), vec(4, 0.1), 2, domain.Modality("audio"))
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchVector_EmptyCollectionYieldsEmptySlice(t *testing.T) {
	store := &mockStore{hits: nil}
	svc := newTestService(t, store, &mockEmbedder{}, true)

	hits, err := svc.SearchVector(context.Background(), vec(4, 0.1), 5, domain.ModalityText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected non-nil empty slice, got %#v", hits)
	}
}

func TestSearchText_EmbedsQuery(t *testing.T) {
	store := &mockStore{hits: []domain.Hit{{ID: "a", Score: 0.5}}}
	emb := &mockEmbedder{textVec: vec(4, 0.2)}
	svc := newTestService(t, store, emb, true)

	hits, err := svc.SearchText(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("unexpected hits: %v", hits)
	}
	if store.lastQ.Modality != domain.ModalityText {
		t.Fatalf("expected text modality, got %q", store.lastQ.Modality)
	}
}

func TestSearchText_EmptyQuery(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockEmbedder{}, true)

	_, err := svc.SearchText(context.Background(), "", 3)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchImage_UsesImageIndex(t *testing.T) {
	store := &mockStore{}
	emb := &mockEmbedder{imageVec: vec(4, 0.3)}
	svc := newTestService(t, store, emb, true)

	if _, err := svc.SearchImage(context.Background(), []byte{0xFF}, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastQ.Modality != domain.ModalityImage {
		t.Fatalf("expected image modality, got %q", store.lastQ.Modality)
	}
}

func TestSearchImage_TextOnlyCollection(t *testing.T) {
	svc := newTestService(t, &mockStore{}, &mockEmbedder{imageVec: vec(4, 0.3)}, false)

	_, err := svc.SearchImage(context.Background(), []byte{0xFF}, 3)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchImage_EmbedderErrorSurfaces(t *testing.T) {
	provider := errors.New("provider down")
	svc := newTestService(t, &mockStore{}, &mockEmbedder{err: provider}, true)

	_, err := svc.SearchImage(context.Background(), []byte{0xFF}, 3)
	if !errors.Is(err, provider) {
		t.Fatalf("expected provider error to surface, got %v", err)
	}
}
