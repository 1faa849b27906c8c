package schema

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

type mockStore struct {
	existsFn func(ctx context.Context, name string) (bool, error)
	createFn func(ctx context.Context, schema vectordb.Schema) error
	dropFn   func(ctx context.Context, name string) error
	dimFn    func(ctx context.Context, name string) (int, error)

	createCalls int
	dropCalls   int
}

func (m *mockStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) CreateCollection(ctx context.Context, schema vectordb.Schema) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, schema)
	}
	return nil
}

func (m *mockStore) DropCollection(ctx context.Context, name string) error {
	m.dropCalls++
	if m.dropFn != nil {
		return m.dropFn(ctx, name)
	}
	return nil
}

func (m *mockStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	if m.dimFn != nil {
		return m.dimFn(ctx, name)
	}
	return 0, nil
}

type mockProber struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockProber) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.vector}, nil
}

func testSchema(dim int) vectordb.Schema {
	return vectordb.Schema{
		Collection: "documents",
		Dimension:  dim,
		Metric:     vectordb.MetricCosine,
		Modalities: []domain.Modality{domain.ModalityText, domain.ModalityImage},
	}
}

func newTestService(t *testing.T, store *mockStore, prober *mockProber, dim int) *Service {
	t.Helper()
	return New(store, prober, testSchema(dim), zap.NewNop())
}
