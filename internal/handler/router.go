package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stats-service/internal/client"
	"stats-service/internal/models"
	"stats-service/internal/ratelimit"
	"stats-service/internal/util"
)

// RouterDeps carries the collaborators the router wires into middleware.
// Audit and Analytics are optional.
type RouterDeps struct {
	StatsHandler *StatsHandler
	Limiter      *ratelimit.Limiter
	Audit        *client.AuditProducer
	Analytics    *client.AnalyticsClient
	Logger       *zap.Logger
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(deps.Logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	if deps.Analytics != nil {
		router.Use(AnalyticsMiddleware(deps.Analytics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	deniedHook := deniedAuditHook(deps.Audit)
	limit := func(tier string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(deps.Limiter, tier, deps.Logger, deniedHook)
	}

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"stats-service"}`))
	})

	// API routes, gated per tier before any expensive work happens
	router.Route("/api/v1", func(r chi.Router) {
		r.With(limit("general")).Get("/leaderboard", deps.StatsHandler.GetLeaderboard)
		r.With(limit("general")).Get("/leaderboard/snapshot", deps.StatsHandler.GetLeaderboardSnapshot)
		r.With(limit("general")).Get("/users/{login}/activity", deps.StatsHandler.GetUserActivity)
		r.With(limit("profile")).Get("/repos/{owner}/{repo}/contributors", deps.StatsHandler.GetRepoContributors)
		r.With(limit("strict")).Get("/orgs/{org}/rollup", deps.StatsHandler.GetOrgRollup)
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// AnalyticsMiddleware records one metrics row per request.
func AnalyticsMiddleware(analytics *client.AnalyticsClient) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			analytics.RecordRequest(r.Context(), models.RequestMetric{
				Endpoint:   r.URL.Path,
				Identifier: ratelimit.ResolveIdentifier(r),
				Status:     ww.Status(),
				Allowed:    ww.Status() != http.StatusTooManyRequests,
				DurationMs: time.Since(start).Milliseconds(),
				OccurredAt: start.UTC(),
			})
		})
	}
}

func deniedAuditHook(audit *client.AuditProducer) ratelimit.DeniedHook {
	if audit == nil {
		return nil
	}
	return func(r *http.Request, identifier string, decision models.RateLimitDecision) {
		audit.Publish(r.Context(), models.AuditEvent{
			ID:         uuid.New().String(),
			Type:       "rate_limit_denied",
			Subject:    identifier,
			OccurredAt: time.Now().UTC(),
		})
	}
}
