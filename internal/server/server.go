// Package server exposes the hybrid executor over HTTP: the query endpoint,
// a dependency health check, and a Prometheus metrics endpoint, behind a chi
// middleware chain (RequestID, RealIP, request logging, request metrics,
// Recoverer, CORS, body limit, rate limit).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hendrikreh/chessmate/internal/executor"
	"github.com/hendrikreh/chessmate/internal/ratelimit"
	"github.com/hendrikreh/chessmate/internal/sanitize"
	"github.com/hendrikreh/chessmate/internal/snapshot"
)

// RequestMetrics is the optional telemetry sink the server reports request
// counts/latency to. A nil RequestMetrics disables reporting.
type RequestMetrics interface {
	ObserveRequest(route, method, status string, latency time.Duration)
}

// rateLimitMetrics is the optional sink for rate-limit admission counters.
type rateLimitMetrics interface {
	ObserveRateLimit(outcome, client string)
}

// Config configures a Server.
type Config struct {
	Port                int
	MaxRequestBodyBytes int64
	ShutdownTimeout     time.Duration
	HealthTimeout       time.Duration
	AllowedOrigins      []string

	// SnapshotCatalogPath, if non-empty, backs the /admin/snapshots
	// endpoints with an append-only JSONL catalogue. Empty disables the
	// endpoints (404).
	SnapshotCatalogPath string
}

// Server wraps an http.Server serving the query/health/metrics endpoints.
type Server struct {
	http              *http.Server
	router            *chi.Mux
	executor          *executor.Executor
	limiter           *ratelimit.Limiter
	health            *HealthChecker
	metrics           RequestMetrics
	snapshots         *snapshot.Catalogue
	log               *slog.Logger
	maxQueryLimit     int
	defaultQueryLimit int
	maxBodyBytes      int64
}

// New builds a Server. exec is required; limiter/health/metrics may be nil
// to disable the corresponding behavior (no rate limiting, a bare 200 health
// response, no request telemetry).
func New(cfg Config, exec *executor.Executor, limiter *ratelimit.Limiter, health *HealthChecker, metrics RequestMetrics, maxQueryLimit, defaultQueryLimit int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if health == nil {
		health = NewHealthChecker(cfg.HealthTimeout)
	}

	s := &Server{
		executor:          exec,
		limiter:           limiter,
		health:            health,
		metrics:           metrics,
		log:               log,
		maxQueryLimit:     maxQueryLimit,
		defaultQueryLimit: defaultQueryLimit,
		maxBodyBytes:      cfg.MaxRequestBodyBytes,
	}
	if cfg.SnapshotCatalogPath != "" {
		s.snapshots = snapshot.Open(cfg.SnapshotCatalogPath)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(log))
	router.Use(s.metricsMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(s.bodyLimitMiddleware)
	router.Use(s.rateLimitMiddleware)

	router.Get("/query", s.handleQuery)
	router.Post("/query", s.handleQuery)
	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	if s.snapshots != nil {
		router.Get("/admin/snapshots", s.handleListSnapshots)
		router.Post("/admin/snapshots", s.handleCreateSnapshot)
	}

	s.router = router
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router exposes the underlying chi router, e.g. for tests that exercise
// handlers directly with httptest without binding a port.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall, checks := s.health.Run(r.Context())
	writeJSON(w, httpStatusFor(overall), healthResponse{Status: overall, Checks: checks})
}

// metricsMiddleware reports per-route request counts/latency. A nil
// RequestMetrics disables reporting entirely.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.ObserveRequest(route, r.Method, fmt.Sprintf("%d", ww.Status()), time.Since(start))
	})
}

// bodyLimitMiddleware rejects requests whose declared Content-Length
// exceeds the configured cap with 413, and also caps the actual read via
// http.MaxBytesReader so a misreported Content-Length cannot bypass it.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.maxBodyBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the dual token-bucket limiter keyed by client
// IP (the host part of r.RemoteAddr, already proxy-resolved by the RealIP
// middleware earlier in the chain), returning 429 with Retry-After when
// exhausted. A nil
// limiter disables rate limiting entirely (used in tests).
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		result := s.limiter.Check(client, int(r.ContentLength))
		if !result.Allowed {
			if rlm, ok := s.metrics.(rateLimitMetrics); ok {
				rlm.ObserveRateLimit("limited", client)
			}
			retrySeconds := int(result.RetryAfter.Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, "Rate limit exceeded. Retry after %d seconds.", retrySeconds)
			return
		}
		if rlm, ok := s.metrics.(rateLimitMetrics); ok {
			rlm.ObserveRateLimit("allowed", client)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": sanitize.Message(message)})
}

// requestLoggingMiddleware logs method/path/status/duration/request id for
// every request.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware is permissive by default: no configured origins means any
// origin is allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
