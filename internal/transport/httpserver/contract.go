package httpserver

import (
	"context"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/usecase/health"
)

// Engine is the facade the HTTP layer serves.
type Engine interface {
	Insert(ctx context.Context, doc domain.Document) (string, error)
	SearchText(ctx context.Context, query string, topK int) ([]domain.Hit, error)
	SearchImage(ctx context.Context, image []byte, topK int) ([]domain.Hit, error)
	Health(ctx context.Context) health.Report
}
