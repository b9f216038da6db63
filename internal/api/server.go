// Package api exposes the HTTP and WebSocket surface: async lifecycle
// operations, job inspection, live log streaming, and the admission guards
// that protect a public deployment.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/cloudlaunch/internal/audit"
	"github.com/seantiz/cloudlaunch/internal/config"
	"github.com/seantiz/cloudlaunch/internal/engine"
	"github.com/seantiz/cloudlaunch/internal/expiry"
	"github.com/seantiz/cloudlaunch/internal/guard"
	"github.com/seantiz/cloudlaunch/internal/jobs"
	"github.com/seantiz/cloudlaunch/internal/provider"
	"github.com/seantiz/cloudlaunch/internal/state"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps bundles the collaborators the server dispatches to.
type Deps struct {
	Jobs        *jobs.Store
	Engine      *engine.Engine
	Registry    *provider.Registry
	State       *state.Store
	Audit       audit.Store
	Rate        *guard.RateLimiter
	Keys        *guard.KeyGuard
	Concurrency *guard.ConcurrencyGuard
	Budget      *guard.BudgetGuard
	Expiry      *expiry.Timer
	Logger      *slog.Logger
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
}

// NewServer creates and configures a new HTTP server.
func NewServer(cfg config.Config, deps Deps) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(srv.rateLimitMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/plan", s.handlePlan)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/quota", s.handleQuota)
	s.router.Get("/audit", s.handleAudit)

	s.router.Get("/jobs", s.handleListJobs)
	s.router.Get("/jobs/{job_id}", s.handleGetJob)
	s.router.Get("/ws/{job_id}", s.handleStream)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/provision", s.handleProvision)
		r.Post("/deploy", s.handleDeploy)
		r.Post("/destroy", s.handleDestroy)
		r.Post("/quota/reset", s.handleQuotaReset)
	})
}

// Router returns the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.deps.Engine.Wait()
	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// callerIP identifies the client for rate limiting and per-caller caps. The
// first X-Forwarded-For hop wins when a proxy fronts the server.
func callerIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// auditAppend records an audit event without failing the request on error.
func (s *Server) auditAppend(ctx context.Context, operation, caller, detail string) {
	if err := s.deps.Audit.Append(ctx, operation, caller, detail); err != nil {
		s.logger.Error("audit append", "operation", operation, "error", err)
	}
}
