// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-api/handlers"
	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
)

// Service is the engine surface served by the API.
type Service interface {
	handlers.Service
	Ping(ctx context.Context) error
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, svc Service, gatherer prometheus.Gatherer, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"answer-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ping(r.Context()); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	resolveHandler := handlers.NewResolveHandler(logger, svc)
	adminHandler := handlers.NewAdminHandler(logger, svc)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))
		r.Use(middleware.Tenant)

		r.Post("/resolve", resolveHandler.Resolve)

		r.Put("/knowledge", adminHandler.UpsertKnowledge)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", adminHandler.RegisterDocument)
			r.Post("/{documentID}/index", adminHandler.IndexDocument)
		})

		r.Post("/pages", adminHandler.IndexPage)

		r.Route("/products", func(r chi.Router) {
			r.Put("/", adminHandler.UpsertProduct)
			r.Delete("/{productID}", adminHandler.DeleteProduct)
		})

		r.Post("/cache/purge", adminHandler.PurgeCache)
	})

	return r
}

// AppConfig holds HTTP-layer configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// appConfigFromEnv reads API keys from ANSWER_ENGINE_API_KEYS (comma separated).
func appConfigFromEnv(requestTimeout time.Duration) *AppConfig {
	cfg := DefaultAppConfig()
	if requestTimeout > 0 {
		cfg.RequestTimeout = requestTimeout
	}
	for _, key := range strings.Split(os.Getenv("ANSWER_ENGINE_API_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			cfg.AuthConfig.APIKeys = append(cfg.AuthConfig.APIKeys, key)
		}
	}
	return cfg
}
