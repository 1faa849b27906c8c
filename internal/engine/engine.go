// Package engine wires the backend store, the embedder, and the usecase
// services into one facade and owns the service lifecycle.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/usecase/document"
	"github.com/kaleido-search/kaleido/internal/usecase/health"
	"github.com/kaleido-search/kaleido/internal/usecase/schema"
	"github.com/kaleido-search/kaleido/internal/usecase/search"
	"github.com/kaleido-search/kaleido/internal/vectordb"
)

// Options configures the startup sequence.
type Options struct {
	// ConnectAttempts bounds the connection retry loop. Default 3.
	ConnectAttempts int
	// ConnectBackoff is the initial retry delay, doubled per attempt.
	// Default 500ms.
	ConnectBackoff time.Duration
}

func (o *Options) applyDefaults() {
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = 3
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = 500 * time.Millisecond
	}
}

// Engine is the service facade: it owns the state machine and routes the
// data path to the usecase services once Serving is reached.
type Engine struct {
	store    vectordb.Store
	embedder domain.Embedder
	schema   *schema.Service
	health   *health.Service
	opts     Options
	logger   *zap.Logger

	state atomic.Int32

	mu     sync.RWMutex // guards docs/searcher swap on Reset
	docs   *document.Service
	search *search.Service
}

// New creates an engine in the uninitialized state.
func New(
	store vectordb.Store,
	embedder domain.Embedder,
	schemaSvc *schema.Service,
	healthSvc *health.Service,
	opts Options,
	logger *zap.Logger,
) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:    store,
		embedder: embedder,
		schema:   schemaSvc,
		health:   healthSvc,
		opts:     opts,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Start connects to the backend with bounded retries, ensures the collection
// schema, and opens the data path. Calling Start on a serving engine is a
// no-op; a Failed engine stays failed.
func (e *Engine) Start(ctx context.Context) error {
	switch e.State() {
	case StateServing:
		return nil
	case StateFailed:
		return fmt.Errorf("engine already failed: %w", domain.ErrConnectionFailed)
	}

	e.state.Store(int32(StateConnecting))

	if err := e.connect(ctx); err != nil {
		e.state.Store(int32(StateFailed))
		return err
	}

	if err := e.schema.Ensure(ctx); err != nil {
		e.state.Store(int32(StateFailed))
		return err
	}
	e.state.Store(int32(StateSchemaReady))

	e.rebuildServices()
	e.state.Store(int32(StateServing))

	e.logger.Info("Engine serving",
		zap.Int("dimension", e.schema.Dimension()))

	return nil
}

// Close releases the backend session.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Insert stores one document. Only available while serving.
func (e *Engine) Insert(ctx context.Context, doc domain.Document) (string, error) {
	svc, err := e.documents()
	if err != nil {
		return "", err
	}
	return svc.Insert(ctx, doc)
}

// SearchText embeds the query text and returns the top-k neighbors.
func (e *Engine) SearchText(ctx context.Context, query string, topK int) ([]domain.Hit, error) {
	svc, err := e.searcher()
	if err != nil {
		return nil, err
	}
	return svc.SearchText(ctx, query, topK)
}

// SearchImage embeds the query image and returns the top-k neighbors.
func (e *Engine) SearchImage(ctx context.Context, image []byte, topK int) ([]domain.Hit, error) {
	svc, err := e.searcher()
	if err != nil {
		return nil, err
	}
	return svc.SearchImage(ctx, image, topK)
}

// SearchVector runs a raw vector query against the given modality.
func (e *Engine) SearchVector(ctx context.Context, vector []float32, topK int, modality domain.Modality) ([]domain.Hit, error) {
	svc, err := e.searcher()
	if err != nil {
		return nil, err
	}
	return svc.SearchVector(ctx, vector, topK, modality)
}

// Count returns the number of stored documents.
func (e *Engine) Count(ctx context.Context) (int64, error) {
	svc, err := e.documents()
	if err != nil {
		return 0, err
	}
	return svc.Count(ctx)
}

// Reset drops and recreates the collection, then reopens the data path with
// the fresh schema.
func (e *Engine) Reset(ctx context.Context) error {
	if e.State() != StateServing {
		return fmt.Errorf("state %s: %w", e.State(), domain.ErrNotServing)
	}
	if err := e.schema.Reset(ctx); err != nil {
		return err
	}
	e.rebuildServices()
	return nil
}

// Health reports component health. Allowed in any state; before Serving it
// reports the lifecycle state as the error detail.
func (e *Engine) Health(ctx context.Context) health.Report {
	if state := e.State(); state != StateServing {
		return health.Report{
			Status: health.Unhealthy,
			Error:  fmt.Sprintf("service is %s", state),
		}
	}
	return e.health.Check(ctx)
}

// connect pings the backend with exponential backoff. Non-transient errors
// (bad credentials, malformed requests) fail immediately.
func (e *Engine) connect(ctx context.Context) error {
	backoff := e.opts.ConnectBackoff

	var lastErr error
	for attempt := 1; attempt <= e.opts.ConnectAttempts; attempt++ {
		err := e.store.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Backend connection recovered",
					zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return fmt.Errorf("connect to backend: %w: %w", domain.ErrConnectionFailed, err)
		}
		if attempt == e.opts.ConnectAttempts {
			break
		}

		e.logger.Warn("Backend connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect to backend: %w: %w", domain.ErrConnectionFailed, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("connect to backend after %d attempts: %w: %w",
		e.opts.ConnectAttempts, domain.ErrConnectionFailed, lastErr)
}

// rebuildServices constructs the data-path services against the schema's
// resolved dimension.
func (e *Engine) rebuildServices() {
	resolved := e.schema.Schema()

	e.mu.Lock()
	e.docs = document.New(e.store, e.embedder, resolved, e.logger)
	e.search = search.New(e.store, e.embedder, resolved, e.logger)
	e.mu.Unlock()
}

func (e *Engine) documents() (*document.Service, error) {
	if e.State() != StateServing {
		return nil, fmt.Errorf("state %s: %w", e.State(), domain.ErrNotServing)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs, nil
}

func (e *Engine) searcher() (*search.Service, error) {
	if e.State() != StateServing {
		return nil, fmt.Errorf("state %s: %w", e.State(), domain.ErrNotServing)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.search, nil
}

// isTransientError reports whether a connection error is worth retrying.
// Plain network errors (no gRPC status) are treated as transient.
func isTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.AlreadyExists:
		return false
	default:
		return true
	}
}
