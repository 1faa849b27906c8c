package health

import (
	"context"

	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "healthy"
	// Degraded indicates the embedding provider is down but the index serves.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector backend is unreachable.
	Unhealthy Status = "unhealthy"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results. Collection is nil when the backend
// is unreachable.
type Report struct {
	Status     Status                    `json:"status"`
	Checks     map[string]CheckResult    `json:"checks,omitempty"`
	Collection *vectordb.CollectionStats `json:"collectionStats,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	stats      StatsReader
	embedding  EmbeddingChecker
	collection string
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, stats StatsReader, embedding EmbeddingChecker, collection string) *Service {
	return &Service{db: db, stats: stats, embedding: embedding, collection: collection}
}

// Check runs health checks against all components. It never returns an
// error: failures are folded into the report.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	report := Report{Checks: checks}

	if err := s.db.Ping(ctx); err != nil {
		checks["vectordb"] = CheckError
		report.Status = Unhealthy
		report.Error = err.Error()
		return report
	}
	checks["vectordb"] = CheckOK

	report.Collection = s.collectionStats(ctx)

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	report.Status = Healthy
	for _, v := range checks {
		if v == CheckError {
			report.Status = Degraded
			break
		}
	}

	return report
}

// collectionStats best-effort reads the collection description. A stats
// failure after a successful ping does not flip the status.
func (s *Service) collectionStats(ctx context.Context) *vectordb.CollectionStats {
	stats := &vectordb.CollectionStats{Name: s.collection}

	exists, err := s.stats.CollectionExists(ctx, s.collection)
	if err != nil {
		return stats
	}
	stats.Exists = exists
	if !exists {
		return stats
	}

	if count, err := s.stats.Count(ctx, s.collection); err == nil {
		stats.Count = count
	}
	return stats
}
