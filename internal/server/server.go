// Package server exposes the Slack webhook and the operational endpoints
// over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"memorylane/internal/agent"
	"memorylane/internal/domain"
)

// ServiceName is reported by /health and used as the trace operation name.
const ServiceName = "memory-lane-slack-bot"

// Generator runs a one-shot generation for the /generate endpoint.
type Generator interface {
	Generate(ctx context.Context, userPrompt string) (domain.Result, error)
	GenerateRaw(ctx context.Context, userPrompt string) (domain.Result, error)
}

// JobLookup reports on dispatched jobs.
type JobLookup interface {
	Get(id string) (agent.Job, bool)
	ListActive() []agent.Job
}

// HealthInfo is the static part of the health report.
type HealthInfo struct {
	SlackConfigured     bool
	ReplicateConfigured bool
	TriggerWord         string
}

// Config wires the handlers served by Server. Generator, Jobs and Metrics are optional.
type Config struct {
	Addr        string
	Events      http.Handler
	Generator   Generator
	Jobs        JobLookup
	Health      HealthInfo
	Metrics     http.Handler
	MetricsPath string
	// TracerProvider overrides the global provider for request spans.
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

type Server struct {
	Router *chi.Mux
	http   *http.Server
	logger *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	var otelOpts []otelhttp.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, ServiceName, otelOpts...)
	})

	h := &handlers{
		generator: cfg.Generator,
		jobs:      cfg.Jobs,
		health:    cfg.Health,
		logger:    cfg.Logger,
	}

	if cfg.Events != nil {
		r.Method(http.MethodPost, "/slack/events", cfg.Events)
	}
	r.Get("/health", h.handleHealth)
	if cfg.Generator != nil {
		r.Post("/generate", h.handleGenerate)
	}
	if cfg.Jobs != nil {
		r.Get("/jobs", h.handleListJobs)
		r.Get("/jobs/{id}", h.handleGetJob)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.Metrics)
	}

	return &Server{
		Router: r,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
