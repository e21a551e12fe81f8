package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stats-service/internal/client"
	"stats-service/internal/models"
	"stats-service/internal/util"
)

const (
	orgRollupPrefix    = "org_rollup:"
	leaderboardPrefix  = "leaderboard:"
	contributorsPrefix = "contributors:"
	userActivityPrefix = "user_activity:"
)

// StatsCache keeps merged aggregation results in Redis so repeated dashboard
// loads skip the upstream fan-out. Best effort: a miss or a cache failure
// just means the caller recomputes.
type StatsCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewStatsCache(redisClient *client.RedisClient, ttl time.Duration) *StatsCache {
	return &StatsCache{client: redisClient, ttl: ttl}
}

func (c *StatsCache) GetOrgRollup(ctx context.Context, org string) (*models.OrgRollup, bool) {
	var rollup models.OrgRollup
	if !c.getJSON(ctx, orgRollupPrefix+org, &rollup) {
		return nil, false
	}
	return &rollup, true
}

func (c *StatsCache) SetOrgRollup(ctx context.Context, org string, rollup *models.OrgRollup) {
	c.setJSON(ctx, orgRollupPrefix+org, rollup)
}

func (c *StatsCache) GetLeaderboard(ctx context.Context, key string) ([]models.ScoredSubject, bool) {
	var scores []models.ScoredSubject
	if !c.getJSON(ctx, leaderboardPrefix+key, &scores) {
		return nil, false
	}
	return scores, true
}

func (c *StatsCache) SetLeaderboard(ctx context.Context, key string, scores []models.ScoredSubject) {
	c.setJSON(ctx, leaderboardPrefix+key, scores)
}

func (c *StatsCache) GetContributors(ctx context.Context, repo string) ([]models.ContributorStats, bool) {
	var contributors []models.ContributorStats
	if !c.getJSON(ctx, contributorsPrefix+repo, &contributors) {
		return nil, false
	}
	return contributors, true
}

func (c *StatsCache) SetContributors(ctx context.Context, repo string, contributors []models.ContributorStats) {
	c.setJSON(ctx, contributorsPrefix+repo, contributors)
}

func (c *StatsCache) GetUserActivity(ctx context.Context, key string) (*models.ScoredSubject, bool) {
	var subject models.ScoredSubject
	if !c.getJSON(ctx, userActivityPrefix+key, &subject) {
		return nil, false
	}
	return &subject, true
}

func (c *StatsCache) SetUserActivity(ctx context.Context, key string, subject *models.ScoredSubject) {
	c.setJSON(ctx, userActivityPrefix+key, subject)
}

func (c *StatsCache) getJSON(ctx context.Context, key string, target interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, client.ErrCacheMiss) {
			util.Warn("stats cache read failed",
				zap.String("key", key),
				zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		util.Warn("stats cache entry corrupt, dropping",
			zap.String("key", key),
			zap.Error(err))
		_ = c.client.Del(ctx, key)
		return false
	}

	util.Debug("stats cache hit", zap.String("key", key))
	return true
}

func (c *StatsCache) setJSON(ctx context.Context, key string, value interface{}) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	payload, err := json.Marshal(value)
	if err != nil {
		util.Error("failed to encode stats cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, payload, c.ttl); err != nil {
		util.Warn("stats cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// LeaderboardKey builds the cache key for a leaderboard request.
func LeaderboardKey(subjectIDs []string, windowDays int) string {
	key := fmt.Sprintf("w%d", windowDays)
	for _, id := range subjectIDs {
		key += ":" + id
	}
	return key
}
