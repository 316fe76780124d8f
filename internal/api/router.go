package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rvannoy/scrip/internal/agent"
	"github.com/rvannoy/scrip/internal/auth"
	"github.com/rvannoy/scrip/internal/metrics"
	"github.com/rvannoy/scrip/internal/ratelimit"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Registry    *agent.Registry
	Runner      Runner
	Executions  ExecutionReader
	Accounts    AccountStore
	Granter     Granter
	Audit       AuditReader
	Limiter     *ratelimit.Limiter
	Metrics     *metrics.Metrics
	AdminKey    string
	CORSOrigins []string
	TrustProxy  bool
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.CORSOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(httpMetricsMiddleware(deps.Metrics))
	}

	// Handlers.
	agents := newAgentsHandler(deps.Registry, deps.Runner, deps.Executions)
	accounts := newAccountsHandler(deps.Accounts, deps.Granter)
	auditH := newAuditHandler(deps.Audit)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Metrics != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
		r.Get("/api/v1/metrics", deps.Metrics.Handler())
	}

	// User-facing routes, rate limited per client IP.
	r.Route("/api/v1", func(ur chi.Router) {
		if deps.Limiter != nil {
			var onReject []func()
			if deps.Metrics != nil {
				onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
			}
			ur.Use(ratelimit.Middleware(deps.Limiter, deps.TrustProxy, onReject...))
		}

		ur.Get("/agents", agents.ListAgents)
		ur.Post("/agents/{agentID}", agents.RunAgent)
		ur.Get("/executions/{executionID}", agents.GetExecution)
	})

	// Admin-keyed routes: account provisioning and the audit log.
	var onAuthReject []func()
	if deps.Metrics != nil {
		onAuthReject = append(onAuthReject, deps.Metrics.IncAuthFailure)
	}
	adminOnly := auth.AdminKeyMiddleware(deps.AdminKey, onAuthReject...)

	r.Route("/api/v1/accounts", func(ar chi.Router) {
		ar.Use(adminOnly)
		ar.Post("/", accounts.CreateAccount)
		ar.Get("/{userID}", accounts.GetAccount)
	})
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(adminOnly)
		ar.Get("/audit", auditH.ListEvents)
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// httpMetricsMiddleware records request counts and latencies labeled by the
// matched route pattern, not the raw path, to bound cardinality.
func httpMetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.ObserveHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start).Seconds())
		})
	}
}
