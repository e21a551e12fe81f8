package models

import "time"

// WeekBucket is one week of commit activity, keyed by the week's start epoch.
type WeekBucket struct {
	Week  int64  `json:"week"`
	Total int    `json:"total"`
	Days  [7]int `json:"days"`
}

// LanguageBytes maps a language name to the byte count attributed to it.
type LanguageBytes map[string]int64

// LanguageStat is one entry of a histogram ordered for presentation.
type LanguageStat struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

// Event is a single typed activity event for a subject.
type Event struct {
	Type      string    `json:"type"`
	Repo      string    `json:"repo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repo identifies one repository of an organization or user.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the owner/name form used by the upstream API.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// ContributorStats is the per-contributor slice of a repository's history.
type ContributorStats struct {
	Login string       `json:"login"`
	Total int          `json:"total"`
	Weeks []WeekBucket `json:"weeks,omitempty"`
}

// ScoredSubject is one row of a leaderboard. Computed fresh per scoring run.
type ScoredSubject struct {
	SubjectID        string     `json:"subject_id"`
	PushCount        int        `json:"push_count"`
	PullRequestCount int        `json:"pull_request_count"`
	IssueCount       int        `json:"issue_count"`
	WeightedScore    int        `json:"weighted_score"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	WindowDays       int        `json:"window_days"`
}

// OrgRollup is the merged result of an organization-wide aggregation.
type OrgRollup struct {
	Org            string         `json:"org"`
	WeekBuckets    []WeekBucket   `json:"week_buckets"`
	Languages      []LanguageStat `json:"languages"`
	FailedChildren int            `json:"failed_children"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// LeaderboardSnapshot is the persisted form of one leaderboard build.
type LeaderboardSnapshot struct {
	ID         string    `db:"id" json:"id"`
	WindowDays int       `db:"window_days" json:"window_days"`
	Scores     string    `db:"scores" json:"scores"` // JSON-encoded []ScoredSubject
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditEvent is published to Kafka after orchestrator runs and on
// rate-limit denials.
type AuditEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Subject        string    `json:"subject"`
	FailedChildren int       `json:"failed_children,omitempty"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RequestMetric is one analytics row written to ClickHouse.
type RequestMetric struct {
	Endpoint   string
	Identifier string
	Status     int
	Allowed    bool
	DurationMs int64
	OccurredAt time.Time
}
