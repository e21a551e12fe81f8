package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stats-service/internal/models"
)

// DeniedHook is invoked after a denied check, e.g. to publish an audit event.
type DeniedHook func(r *http.Request, identifier string, decision models.RateLimitDecision)

// deniedBody mirrors the decision fields; this shape is a stable contract.
type deniedBody struct {
	Error             string `json:"error"`
	Limit             int    `json:"limit"`
	Remaining         int    `json:"remaining"`
	ResetAt           string `json:"reset_at"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// Middleware gates a route group behind the named tier. Limit headers are set
// on every response; denied requests get a 429 with machine-readable fields.
func Middleware(limiter *Limiter, tierName string, logger *zap.Logger, onDenied DeniedHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := ResolveIdentifier(r)

			decision, err := limiter.Check(identifier, tierName)
			if err != nil {
				// Unknown tier is a wiring bug; fail open and log loudly.
				logger.Error("rate limit check failed",
					zap.String("tier", tierName),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", decision.ResetAt.UTC().Format(time.RFC3339))

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			if onDenied != nil {
				onDenied(r, identifier, decision)
			}

			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(deniedBody{
				Error:             "rate limit exceeded",
				Limit:             decision.Limit,
				Remaining:         decision.Remaining,
				ResetAt:           decision.ResetAt.UTC().Format(time.RFC3339),
				RetryAfterSeconds: decision.RetryAfterSeconds,
			})
		})
	}
}
