package health

import "context"

// DBPinger checks vector backend availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// StatsReader reads collection stats for the health payload.
type StatsReader interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context, name string) (int64, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
