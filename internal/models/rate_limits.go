package models

import "time"

// RateWindow is the mutable counter state for one identifier within a tier.
// Valid only until ResetAt; an expired window is reset in place on next use.
type RateWindow struct {
	Identifier string    `json:"identifier"`
	Count      int       `json:"count"`
	ResetAt    time.Time `json:"reset_at"`
}

// RateLimitDecision is the outcome of a limiter check. The field values are a
// stable contract surfaced verbatim in HTTP headers and response bodies.
type RateLimitDecision struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}
