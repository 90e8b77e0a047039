package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/api/handlers"
	"github.com/bikeshrana/awfes/internal/audit"
	"github.com/bikeshrana/awfes/internal/auth"
	"github.com/bikeshrana/awfes/internal/config"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/metrics"
	"github.com/bikeshrana/awfes/internal/runservice"
	"github.com/bikeshrana/awfes/internal/store"
)

// Server wraps the run-history and run-trigger HTTP API.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds the router and wraps it in an *http.Server bound to
// cfg.Host:cfg.Port. It wires run history and audit reads (open), the
// single-operator login endpoint (open), and the run-trigger and
// live-progress endpoints (behind a JWT bearer token).
func NewServer(
	cfg *config.ServerConfig,
	authCfg config.AuthConfig,
	st *store.Store,
	auditLogger *audit.Logger,
	runs *runservice.Service,
	bus *events.Bus,
	reg *metrics.RunMetrics,
	logger zerolog.Logger,
) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(reg.HTTPMiddleware())

	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins))
	r.Use(middleware.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS"))
	r.Use(middleware.SetHeader("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization"))

	jwtService := auth.NewJWTService(authCfg.JWTSecret, authCfg.AccessTokenTTL, logger)

	healthHandler := handlers.NewHealthHandler(st, logger)
	authHandler := handlers.NewAuthHandler(jwtService, authCfg, logger)
	auditHandler := handlers.NewAuditHandler(auditLogger, logger)
	runsHandler := handlers.NewRunsHandler(st, runs, bus, logger)

	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.RefreshToken)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"message": "AWFES run history API", "version": "1.0.0"}`))
		})

		r.Get("/runs", runsHandler.ListRuns)
		r.Get("/runs/{runID}", runsHandler.GetRun)
		r.Get("/audit/events", auditHandler.GetAuditLogs)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(jwtService))
			r.Get("/auth/me", authHandler.GetCurrentUser)
			r.Post("/runs", runsHandler.TriggerRun)
			r.Get("/runs/stream", runsHandler.StreamProgress)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{router: r, server: httpServer, logger: logger}
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting run-history API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down run-history API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("run-history API server stopped")
	return nil
}

// LoggingMiddleware logs each HTTP request once it completes.
func LoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
