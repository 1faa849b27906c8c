package domain

import "context"

// Embedder is the shared vectorization contract between layers. Both methods
// map their input to a fixed-length float vector; implementations may call a
// remote inference API and must honor ctx cancellation.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// EmbeddingHealthChecker verifies embedding provider availability.
type EmbeddingHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Vector       []float32
	PromptTokens int
	TotalTokens  int
}
