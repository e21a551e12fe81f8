package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stats-service/internal/aggregate"
	"stats-service/internal/client"
	"stats-service/internal/models"
	"stats-service/internal/poll"
	"stats-service/internal/ratelimit"
	"stats-service/internal/service"
)

// routeUpstream is a canned upstream for route-level tests.
type routeUpstream struct {
	orgRepos     []models.Repo
	events       []models.Event
	contributors []models.ContributorStats
	// computing forces the statistics endpoints to never materialize.
	computing bool
	// missing makes every statistics read fail permanently.
	missing bool
}

func (u *routeUpstream) ListOrgRepos(ctx context.Context, org string) ([]models.Repo, error) {
	return u.orgRepos, nil
}

func (u *routeUpstream) ListUserEvents(ctx context.Context, login string) ([]models.Event, error) {
	return u.events, nil
}

func (u *routeUpstream) FetchCommitActivity(ctx context.Context, owner, repo string) (poll.Status, []models.WeekBucket, error) {
	if u.missing {
		return 0, nil, poll.Permanent(fmt.Errorf("%w: %s/%s", client.ErrNotFound, owner, repo))
	}
	if u.computing {
		return poll.StatusComputing, nil, nil
	}
	return poll.StatusReady, []models.WeekBucket{{Week: 100, Total: 1, Days: [7]int{1}}}, nil
}

func (u *routeUpstream) FetchContributorStats(ctx context.Context, owner, repo string) (poll.Status, []models.ContributorStats, error) {
	if u.missing {
		return 0, nil, poll.Permanent(fmt.Errorf("%w: %s/%s", client.ErrNotFound, owner, repo))
	}
	if u.computing {
		return poll.StatusComputing, nil, nil
	}
	return poll.StatusReady, u.contributors, nil
}

func (u *routeUpstream) FetchLanguages(ctx context.Context, owner, repo string) (models.LanguageBytes, error) {
	return models.LanguageBytes{"Go": 10}, nil
}

func newTestRouter(t *testing.T, upstream service.Upstream, tiers map[string]ratelimit.Tier) http.Handler {
	t.Helper()

	logger := zap.NewNop()

	pollerCfg := poll.DefaultConfig()
	pollerCfg.MaxComputingRetries = 1
	pollerCfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	poller, err := poll.New(pollerCfg, logger)
	require.NoError(t, err)

	statsService := service.NewStatsService(
		upstream, poller, aggregate.New(4, 52, logger), nil, nil, nil, logger)

	limiter, err := ratelimit.NewLimiter(tiers, logger)
	require.NoError(t, err)

	return NewRouter(RouterDeps{
		StatsHandler: NewStatsHandler(statsService, logger),
		Limiter:      limiter,
		Logger:       logger,
	})
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestContributorsRoute(t *testing.T) {
	upstream := &routeUpstream{contributors: []models.ContributorStats{
		{Login: "minor", Total: 1},
		{Login: "major", Total: 9},
	}}
	router := newTestRouter(t, upstream, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/repos/acme/api/contributors", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Success bool `json:"success"`
		Data    []models.ContributorStats
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	require.Len(t, response.Data, 2)
	assert.Equal(t, "major", response.Data[0].Login)
}

func TestContributorsComputingMapsTo202(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{computing: true}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/repos/acme/api/contributors", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"computing"`)
}

func TestMissingRepoMapsTo404(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{missing: true}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/repos/acme/gone/contributors", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardWithoutSubjectsMapsTo400(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/leaderboard", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStrictTierLimitsOrgRollup(t *testing.T) {
	tiers := map[string]ratelimit.Tier{
		"general": {Window: time.Minute, MaxRequests: 100},
		"profile": {Window: time.Minute, MaxRequests: 100},
		"strict":  {Window: time.Minute, MaxRequests: 2},
	}
	router := newTestRouter(t, &routeUpstream{}, tiers)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/orgs/acme/rollup", nil)
		req.RemoteAddr = "7.7.7.7:1000"
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/orgs/acme/rollup", nil)
	req.RemoteAddr = "7.7.7.7:1000"
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	// A different caller still has full budget.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/orgs/acme/rollup", nil)
	req.RemoteAddr = "8.8.8.8:1000"
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserActivityRoute(t *testing.T) {
	now := time.Now().UTC()
	upstream := &routeUpstream{events: []models.Event{
		{Type: "PushEvent", CreatedAt: now.Add(-24 * time.Hour)},
	}}
	router := newTestRouter(t, upstream, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/users/alice/activity?window_days=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data models.ScoredSubject `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "alice", response.Data.SubjectID)
	assert.Equal(t, 2, response.Data.WeightedScore)
	assert.Equal(t, 7, response.Data.WindowDays)
}

func TestSnapshotRouteWithoutStoreReturns404(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/leaderboard/snapshot?window_days=30", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no snapshot available")
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(t, &routeUpstream{}, ratelimit.DefaultTiers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v2/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "endpoint not found")
}
