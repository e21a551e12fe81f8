package ratelimit

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const subjectIDKey contextKey = "subject_id"

// WithSubjectID stamps the authenticated subject onto the request context.
// The auth layer calls this after validating credentials.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectIDKey, subjectID)
}

// SubjectID returns the authenticated subject id, or empty for anonymous callers.
func SubjectID(ctx context.Context) string {
	if value, ok := ctx.Value(subjectIDKey).(string); ok {
		return value
	}
	return ""
}

// ResolveIdentifier derives the rate-limit identifier for a request: the
// authenticated subject id when present, otherwise the best-effort client
// address. The prefix keeps the two namespaces from colliding.
func ResolveIdentifier(r *http.Request) string {
	if subjectID := SubjectID(r.Context()); subjectID != "" {
		return "user:" + subjectID
	}

	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For /
	// X-Real-IP, so RemoteAddr is the best address available here.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
