package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kaleido-search/kaleido/internal/config"
	"github.com/kaleido-search/kaleido/internal/domain"
	"github.com/kaleido-search/kaleido/internal/engine"
	"github.com/kaleido-search/kaleido/internal/kv"
	kvRedis "github.com/kaleido-search/kaleido/internal/kv/redis"
	logpkg "github.com/kaleido-search/kaleido/internal/logger"
	"github.com/kaleido-search/kaleido/internal/metrics"
	"github.com/kaleido-search/kaleido/internal/repository/embcache"
	"github.com/kaleido-search/kaleido/internal/transport/httpserver"
	openaiEmb "github.com/kaleido-search/kaleido/internal/transport/openai"
	healthuc "github.com/kaleido-search/kaleido/internal/usecase/health"
	schemauc "github.com/kaleido-search/kaleido/internal/usecase/schema"
	"github.com/kaleido-search/kaleido/internal/vectordb"
	vdbChromem "github.com/kaleido-search/kaleido/internal/vectordb/chromem"
	vdbQdrant "github.com/kaleido-search/kaleido/internal/vectordb/qdrant"
	"github.com/kaleido-search/kaleido/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kaleido API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("backend", cfg.Backend.Driver),
		zap.String("collection", cfg.Collection.Name),
		zap.String("modality", cfg.Collection.Modality),
	)

	// Create vector backend based on driver
	var store vectordb.Store
	switch cfg.Backend.Driver {
	case "qdrant":
		var qs *vdbQdrant.Store
		qs, err = vdbQdrant.NewStore(vdbQdrant.Config{
			Host:   cfg.Backend.Qdrant.Host,
			Port:   cfg.Backend.Qdrant.Port,
			APIKey: cfg.Backend.Qdrant.APIKey,
			UseTLS: cfg.Backend.Qdrant.UseTLS,
		}, logger)
		if err == nil && cfg.Collection.EFSearch > 0 {
			qs = qs.WithEFSearch(cfg.Collection.EFSearch)
		}
		store = qs
	case "chromem":
		store, err = vdbChromem.NewStore(vdbChromem.Config{
			Path:     cfg.Backend.ChromemPath,
			Compress: cfg.Backend.ChromemCompress,
		}, logger)
	default:
		logger.Fatal("Unknown backend driver", zap.String("driver", cfg.Backend.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create vector backend", zap.Error(err))
	}
	defer store.Close()

	// Register embedding metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	// Optional embedding cache
	var cache kv.Store
	if len(cfg.Cache.Addrs) > 0 {
		cache, err = kvRedis.NewStore(kvRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache", zap.Error(err))
		}
		defer cache.Close()
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	embedder, embChecker := buildEmbedder(cfg, cache, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.String("image_model", cfg.Embedding.ImageModel),
		zap.Bool("cached", cache != nil),
	)

	schemaSvc := schemauc.New(store, embedder, cfg.Collection.Schema(), logger).
		WithProbeText(cfg.Embedding.ProbeText)
	healthSvc := healthuc.New(store, store, embChecker, cfg.Collection.Name)

	eng := engine.New(store, embedder, schemaSvc, healthSvc, engine.Options{
		ConnectAttempts: cfg.Backend.ConnectAttempts,
		ConnectBackoff:  time.Duration(cfg.Backend.ConnectBackoffMS) * time.Millisecond,
	}, logger)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}
	logger.Info("Engine started", zap.String("state", eng.State().String()))

	fetcher := httpserver.NewImageFetcher(
		time.Duration(cfg.Embedding.ImageTimeoutSec)*time.Second, 0)
	server := httpserver.NewServer(eng, fetcher, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpserver.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached.
func buildEmbedder(cfg config.Config, cache kv.Store, logger *zap.Logger) (domain.Embedder, healthuc.EmbeddingChecker) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:       cfg.Embedding.APIKey,
		BaseURL:      cfg.Embedding.BaseURL,
		Model:        cfg.Embedding.Model,
		ImageModel:   cfg.Embedding.ImageModel,
		Provider:     "openai",
		ImageTimeout: time.Duration(cfg.Embedding.ImageTimeoutSec) * time.Second,
		Logger:       logger,
	})

	var embedder domain.Embedder = base
	if cache != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, cache, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	return embedder, base
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
