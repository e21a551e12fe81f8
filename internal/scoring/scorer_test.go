package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stats-service/internal/models"
)

var (
	windowEnd   = time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	windowStart = windowEnd.AddDate(0, 0, -30)
)

func eventAt(eventType string, daysAgo int) models.Event {
	return models.Event{
		Type:      eventType,
		Repo:      "acme/api",
		CreatedAt: windowEnd.AddDate(0, 0, -daysAgo),
	}
}

func TestScoreWeights(t *testing.T) {
	subjects := []Subject{{
		SubjectID: "alice",
		Events: []models.Event{
			eventAt(EventTypePush, 1),
			eventAt(EventTypePush, 2),
			eventAt(EventTypePush, 3),
			eventAt(EventTypePush, 4),
			eventAt(EventTypePush, 5),
			eventAt(EventTypePullRequest, 1),
			eventAt(EventTypePullRequest, 2),
			eventAt(EventTypeIssues, 1),
		},
	}}

	scored := Score(subjects, windowStart, windowEnd)
	require.Len(t, scored, 1)

	row := scored[0]
	assert.Equal(t, 5, row.PushCount)
	assert.Equal(t, 2, row.PullRequestCount)
	assert.Equal(t, 1, row.IssueCount)
	// 5*2 + 2*4 + 1*3
	assert.Equal(t, 21, row.WeightedScore)
	assert.Equal(t, 30, row.WindowDays)
}

func TestScoreFiltersWindow(t *testing.T) {
	subjects := []Subject{{
		SubjectID: "bob",
		Events: []models.Event{
			eventAt(EventTypePush, 5),
			eventAt(EventTypePush, 31), // one day before the window opens
			{Type: EventTypePush, CreatedAt: windowEnd.Add(time.Hour)},
		},
	}}

	scored := Score(subjects, windowStart, windowEnd)
	require.Len(t, scored, 1)
	assert.Equal(t, 1, scored[0].PushCount)
	require.NotNil(t, scored[0].LastActivityAt)
	assert.Equal(t, windowEnd.AddDate(0, 0, -5), *scored[0].LastActivityAt)
}

func TestScoreIgnoresUnknownTypesButTracksActivity(t *testing.T) {
	subjects := []Subject{{
		SubjectID: "carol",
		Events: []models.Event{
			eventAt("WatchEvent", 2),
			eventAt(EventTypeIssues, 10),
		},
	}}

	scored := Score(subjects, windowStart, windowEnd)
	require.Len(t, scored, 1)

	row := scored[0]
	assert.Equal(t, 3, row.WeightedScore)
	// The unrecognized event still counts as activity.
	require.NotNil(t, row.LastActivityAt)
	assert.Equal(t, windowEnd.AddDate(0, 0, -2), *row.LastActivityAt)
}

func TestScoreIncludesZeroEventSubjects(t *testing.T) {
	subjects := []Subject{
		{SubjectID: "active", Events: []models.Event{eventAt(EventTypePush, 1)}},
		{SubjectID: "idle", Events: nil},
	}

	scored := Score(subjects, windowStart, windowEnd)
	require.Len(t, scored, 2)

	assert.Equal(t, "active", scored[0].SubjectID)
	assert.Equal(t, "idle", scored[1].SubjectID)
	assert.Equal(t, 0, scored[1].WeightedScore)
	assert.Nil(t, scored[1].LastActivityAt)
}

func TestScoreTiesKeepInputOrder(t *testing.T) {
	subjects := []Subject{
		{SubjectID: "first", Events: []models.Event{eventAt(EventTypePush, 1)}},
		{SubjectID: "second", Events: []models.Event{eventAt(EventTypePush, 2)}},
		{SubjectID: "winner", Events: []models.Event{eventAt(EventTypePullRequest, 1)}},
	}

	scored := Score(subjects, windowStart, windowEnd)
	require.Len(t, scored, 3)
	assert.Equal(t, "winner", scored[0].SubjectID)
	assert.Equal(t, "first", scored[1].SubjectID)
	assert.Equal(t, "second", scored[2].SubjectID)
}

func TestRankContributors(t *testing.T) {
	ranked := RankContributors([]models.ContributorStats{
		{Login: "low", Total: 3},
		{Login: "tied-a", Total: 10},
		{Login: "tied-b", Total: 10},
		{Login: "high", Total: 40},
	})

	assert.Equal(t, "high", ranked[0].Login)
	assert.Equal(t, "tied-a", ranked[1].Login)
	assert.Equal(t, "tied-b", ranked[2].Login)
	assert.Equal(t, "low", ranked[3].Login)
}
