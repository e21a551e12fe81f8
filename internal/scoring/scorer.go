package scoring

import (
	"sort"
	"time"

	"stats-service/internal/models"
)

// Event weights. Tunable without touching the algorithm.
const (
	PushWeight        = 2
	PullRequestWeight = 4
	IssueWeight       = 3
)

// Upstream event type names recognized by the scorer. Anything else is
// ignored, not an error.
const (
	EventTypePush        = "PushEvent"
	EventTypePullRequest = "PullRequestEvent"
	EventTypeIssues      = "IssuesEvent"
)

// Subject pairs a subject id with its raw events.
type Subject struct {
	SubjectID string
	Events    []models.Event
}

// Score filters each subject's events to [windowStart, windowEnd], counts
// them by type, and ranks subjects descending by weighted score. The sort is
// stable, so ties keep their input order and repeated runs on identical input
// produce identical output. Subjects with zero in-window events still appear,
// with all counts at zero, so downstream ranking has a complete universe.
func Score(subjects []Subject, windowStart, windowEnd time.Time) []models.ScoredSubject {
	windowDays := int(windowEnd.Sub(windowStart).Hours() / 24)

	scored := make([]models.ScoredSubject, 0, len(subjects))
	for _, subject := range subjects {
		scored = append(scored, scoreSubject(subject, windowStart, windowEnd, windowDays))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].WeightedScore > scored[j].WeightedScore
	})
	return scored
}

func scoreSubject(subject Subject, windowStart, windowEnd time.Time, windowDays int) models.ScoredSubject {
	row := models.ScoredSubject{
		SubjectID:  subject.SubjectID,
		WindowDays: windowDays,
	}

	var lastActivity time.Time
	for _, event := range subject.Events {
		if event.CreatedAt.Before(windowStart) || event.CreatedAt.After(windowEnd) {
			continue
		}

		if event.CreatedAt.After(lastActivity) {
			lastActivity = event.CreatedAt
		}

		switch event.Type {
		case EventTypePush:
			row.PushCount++
		case EventTypePullRequest:
			row.PullRequestCount++
		case EventTypeIssues:
			row.IssueCount++
		}
	}

	row.WeightedScore = row.PushCount*PushWeight +
		row.PullRequestCount*PullRequestWeight +
		row.IssueCount*IssueWeight
	if !lastActivity.IsZero() {
		row.LastActivityAt = &lastActivity
	}
	return row
}

// RankContributors orders per-contributor stats descending by total commits.
// The sort is stable; ties keep upstream order.
func RankContributors(contributors []models.ContributorStats) []models.ContributorStats {
	ranked := make([]models.ContributorStats, len(contributors))
	copy(ranked, contributors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})
	return ranked
}
