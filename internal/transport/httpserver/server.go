// Package httpserver exposes the engine over a JSON HTTP API.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/usecase/health"
)

// Error codes returned in the "code" field of error responses.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeDimensionMismatch = "vector_dim_mismatch"
	codeNotFound          = "not_found"
	codeEmbeddingProvider = "embedding_provider_error"
	codeUnavailable       = "service_unavailable"
	codeInternalError     = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers over the engine facade.
type Server struct {
	engine        Engine
	fetcher       *ImageFetcher
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine Engine, fetcher *ImageFetcher, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		fetcher: fetcher,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimensionMismatch),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrConnectionFailed, http.StatusServiceUnavailable, codeUnavailable),
		sentinelHandler(domain.ErrNotServing, http.StatusServiceUnavailable, codeUnavailable),
	}
	return s
}

// Routes registers the API handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/documents", s.InsertDocument)
	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type insertRequest struct {
	ID             string         `json:"id,omitempty"`
	Text           string         `json:"text"`
	TextEmbedding  []float32      `json:"textEmbedding,omitempty"`
	ImageEmbedding []float32      `json:"imageEmbedding,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type insertResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

type searchRequest struct {
	Query    string `json:"query,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	TopK     int    `json:"topK,omitempty"`
}

type searchHit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

// InsertDocument handles POST /documents.
func (s *Server) InsertDocument(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Text == "" && req.TextEmbedding == nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "text is required")
		return
	}

	id, err := s.engine.Insert(r.Context(), domain.Document{
		ID:          req.ID,
		Text:        req.Text,
		TextVector:  req.TextEmbedding,
		ImageVector: req.ImageEmbedding,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, insertResponse{Status: "success", ID: id})
}

// Search handles POST /search. Exactly one of query and imageUrl must be set.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	hasQuery := req.Query != ""
	hasImage := req.ImageURL != ""
	if hasQuery == hasImage {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"exactly one of query and imageUrl is required")
		return
	}

	var (
		hits []domain.Hit
		err  error
	)
	if hasQuery {
		hits, err = s.engine.SearchText(r.Context(), req.Query, req.TopK)
	} else {
		var image []byte
		image, err = s.fetcher.Fetch(r.Context(), req.ImageURL)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		hits, err = s.engine.SearchImage(r.Context(), image, req.TopK)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results := make([]searchHit, len(hits))
	for i, h := range hits {
		results[i] = searchHit{
			ID:       h.ID,
			Text:     h.Text,
			Metadata: h.Metadata,
			Score:    h.Score,
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	httpStatus := http.StatusOK
	if report.Status == health.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Dimension mismatches keep their detail since the numbers are the point.
func safeDomainMessage(err error) string {
	var dimErr *domain.DimensionMismatchError
	if errors.As(err, &dimErr) {
		return dimErr.Error()
	}

	sentinels := []error{
		domain.ErrDimensionMismatch,
		domain.ErrInvalidQuery,
		domain.ErrNotFound,
		domain.ErrEmbeddingProvider,
		domain.ErrConnectionFailed,
		domain.ErrNotServing,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
