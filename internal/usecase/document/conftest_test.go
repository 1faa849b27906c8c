package document

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

type mockStore struct {
	upsertFn func(ctx context.Context, collection string, points []vectordb.Point) error
	countFn  func(ctx context.Context, name string) (int64, error)

	upserted []vectordb.Point
}

func (m *mockStore) Upsert(ctx context.Context, collection string, points []vectordb.Point) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, collection, points)
	}
	m.upserted = append(m.upserted, points...)
	return nil
}

func (m *mockStore) Count(ctx context.Context, name string) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, name)
	}
	return int64(len(m.upserted)), nil
}

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Vector: m.vector}, nil
}

func multimodalSchema(dim int) vectordb.Schema {
	return vectordb.Schema{
		Collection: "documents",
		Dimension:  dim,
		Metric:     vectordb.MetricCosine,
		Modalities: []domain.Modality{domain.ModalityText, domain.ModalityImage},
	}
}

func textOnlySchema(dim int) vectordb.Schema {
	return vectordb.Schema{
		Collection: "documents",
		Dimension:  dim,
		Metric:     vectordb.MetricCosine,
		Modalities: []domain.Modality{domain.ModalityText},
	}
}

func newTestService(t *testing.T, store *mockStore, emb *mockEmbedder, schema vectordb.Schema) *Service {
	t.Helper()
	return New(store, emb, schema, zap.NewNop())
}

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}
