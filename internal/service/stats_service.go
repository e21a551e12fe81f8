package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stats-service/internal/aggregate"
	"stats-service/internal/client"
	"stats-service/internal/models"
	"stats-service/internal/poll"
	redisrepo "stats-service/internal/repository/redis"
	"stats-service/internal/repository/scylla"
	"stats-service/internal/scoring"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultWindowDays = 30
	maxSubjects       = 50
)

// Upstream is the slice of the source-control hosting API the orchestrators
// consume. Satisfied by client.GitHubClient; faked in tests.
type Upstream interface {
	ListOrgRepos(ctx context.Context, org string) ([]models.Repo, error)
	ListUserEvents(ctx context.Context, login string) ([]models.Event, error)
	FetchCommitActivity(ctx context.Context, owner, repo string) (poll.Status, []models.WeekBucket, error)
	FetchContributorStats(ctx context.Context, owner, repo string) (poll.Status, []models.ContributorStats, error)
	FetchLanguages(ctx context.Context, owner, repo string) (models.LanguageBytes, error)
}

// StatsService composes the aggregator, poller and scorer into the entry
// points the route layer calls. Cache, snapshots and audit are optional
// collaborators; a nil value disables that concern.
type StatsService struct {
	upstream   Upstream
	poller     *poll.Poller
	aggregator *aggregate.Aggregator
	cache      *redisrepo.StatsCache
	snapshots  scylla.SnapshotRepository
	audit      *client.AuditProducer
	logger     *zap.Logger
	now        func() time.Time
}

// NewStatsService creates the stats orchestrator.
func NewStatsService(
	upstream Upstream,
	poller *poll.Poller,
	aggregator *aggregate.Aggregator,
	cache *redisrepo.StatsCache,
	snapshots scylla.SnapshotRepository,
	audit *client.AuditProducer,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		upstream:   upstream,
		poller:     poller,
		aggregator: aggregator,
		cache:      cache,
		snapshots:  snapshots,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// BuildLeaderboard fetches each subject's recent events concurrently, scores
// them over the window, and returns the ranked board. A subject whose fetch
// fails still appears with zero counts so the universe stays complete.
func (s *StatsService) BuildLeaderboard(ctx context.Context, subjectIDs []string, windowDays int) ([]models.ScoredSubject, error) {
	subjectIDs = normalizeSubjects(subjectIDs)
	if len(subjectIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one subject is required", ErrInvalidInput)
	}
	if len(subjectIDs) > maxSubjects {
		return nil, fmt.Errorf("%w: at most %d subjects per leaderboard", ErrInvalidInput, maxSubjects)
	}
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	cacheKey := redisrepo.LeaderboardKey(subjectIDs, windowDays)
	if s.cache != nil {
		if scores, ok := s.cache.GetLeaderboard(ctx, cacheKey); ok {
			return scores, nil
		}
	}

	started := s.now()
	subjects := make([]scoring.Subject, len(subjectIDs))

	var group errgroup.Group
	for i, subjectID := range subjectIDs {
		i, subjectID := i, subjectID
		group.Go(func() error {
			events, err := s.upstream.ListUserEvents(ctx, subjectID)
			if err != nil {
				s.logger.Warn("failed to fetch subject events",
					zap.String("subject", subjectID),
					zap.Error(err))
				events = nil
			}
			subjects[i] = scoring.Subject{SubjectID: subjectID, Events: events}
			return nil
		})
	}
	_ = group.Wait()

	windowEnd := s.now()
	windowStart := windowEnd.AddDate(0, 0, -windowDays)
	scores := scoring.Score(subjects, windowStart, windowEnd)

	if s.cache != nil {
		s.cache.SetLeaderboard(ctx, cacheKey, scores)
	}
	s.saveSnapshot(ctx, scores, windowDays)
	s.publishAudit(ctx, "leaderboard_built", strings.Join(subjectIDs, ","), 0, started)

	return scores, nil
}

// BuildOrgRollup enumerates the organization's repositories and fans out one
// eventually-consistent commit-activity poll plus a language read per
// repository, merging everything into a single rollup. Per-repository
// failures reduce coverage but never abort the rollup.
func (s *StatsService) BuildOrgRollup(ctx context.Context, org string) (*models.OrgRollup, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("%w: org is required", ErrInvalidInput)
	}

	if s.cache != nil {
		if rollup, ok := s.cache.GetOrgRollup(ctx, org); ok {
			return rollup, nil
		}
	}

	started := s.now()
	repos, err := s.upstream.ListOrgRepos(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories for %s: %w", org, err)
	}

	result := s.aggregator.Aggregate(ctx, repos, s.fetchRepoPartial)

	rollup := &models.OrgRollup{
		Org:            org,
		WeekBuckets:    result.WeekBuckets,
		Languages:      aggregate.RankLanguages(result.Languages),
		FailedChildren: result.FailedChildren,
		GeneratedAt:    s.now().UTC(),
	}

	if s.cache != nil {
		s.cache.SetOrgRollup(ctx, org, rollup)
	}
	s.publishAudit(ctx, "org_rollup_built", org, result.FailedChildren, started)

	if result.FailedChildren > 0 {
		s.logger.Warn("org rollup is partial",
			zap.String("org", org),
			zap.Int("failed_children", result.FailedChildren),
			zap.Int("total_children", len(repos)))
	}
	return rollup, nil
}

// fetchRepoPartial polls one repository's commit activity to readiness, then
// reads its language histogram.
func (s *StatsService) fetchRepoPartial(ctx context.Context, repo models.Repo) (aggregate.Partial, error) {
	var buckets []models.WeekBucket
	err := s.poller.Poll(ctx, func(ctx context.Context) (poll.Status, error) {
		status, payload, err := s.upstream.FetchCommitActivity(ctx, repo.Owner, repo.Name)
		if err != nil {
			return 0, err
		}
		if status == poll.StatusReady {
			buckets = payload
		}
		return status, nil
	})
	if err != nil {
		return aggregate.Partial{}, err
	}

	languages, err := s.upstream.FetchLanguages(ctx, repo.Owner, repo.Name)
	if err != nil {
		return aggregate.Partial{}, err
	}

	return aggregate.Partial{WeekBuckets: buckets, Languages: languages}, nil
}

// BuildRepoContributors polls contributor statistics for one repository and
// ranks contributors descending by total commits. ErrStillComputing
// propagates so the route layer can answer with a distinct computing state.
func (s *StatsService) BuildRepoContributors(ctx context.Context, owner, repo string) ([]models.ContributorStats, error) {
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("%w: owner and repo are required", ErrInvalidInput)
	}

	fullName := owner + "/" + repo
	if s.cache != nil {
		if contributors, ok := s.cache.GetContributors(ctx, fullName); ok {
			return contributors, nil
		}
	}

	var contributors []models.ContributorStats
	err := s.poller.Poll(ctx, func(ctx context.Context) (poll.Status, error) {
		status, payload, err := s.upstream.FetchContributorStats(ctx, owner, repo)
		if err != nil {
			return 0, err
		}
		if status == poll.StatusReady {
			contributors = payload
		}
		return status, nil
	})
	if err != nil {
		return nil, err
	}

	ranked := scoring.RankContributors(contributors)
	if s.cache != nil {
		s.cache.SetContributors(ctx, fullName, ranked)
	}
	return ranked, nil
}

// BuildUserActivity scores one subject's recent events.
func (s *StatsService) BuildUserActivity(ctx context.Context, login string, windowDays int) (*models.ScoredSubject, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	cacheKey := fmt.Sprintf("%s:w%d", login, windowDays)
	if s.cache != nil {
		if subject, ok := s.cache.GetUserActivity(ctx, cacheKey); ok {
			return subject, nil
		}
	}

	events, err := s.upstream.ListUserEvents(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events for %s: %w", login, err)
	}

	windowEnd := s.now()
	windowStart := windowEnd.AddDate(0, 0, -windowDays)
	scores := scoring.Score([]scoring.Subject{{SubjectID: login, Events: events}}, windowStart, windowEnd)
	subject := &scores[0]

	if s.cache != nil {
		s.cache.SetUserActivity(ctx, cacheKey, subject)
	}
	return subject, nil
}

// LatestSnapshot returns the most recent persisted leaderboard for a window.
func (s *StatsService) LatestSnapshot(ctx context.Context, windowDays int) (*models.LeaderboardSnapshot, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	if s.snapshots == nil {
		return nil, scylla.ErrSnapshotNotFound
	}
	return s.snapshots.GetLatestSnapshot(ctx, windowDays)
}

func (s *StatsService) saveSnapshot(ctx context.Context, scores []models.ScoredSubject, windowDays int) {
	if s.snapshots == nil {
		return
	}

	encoded, err := json.Marshal(scores)
	if err != nil {
		s.logger.Error("failed to encode leaderboard snapshot", zap.Error(err))
		return
	}

	snapshot := &models.LeaderboardSnapshot{
		ID:         uuid.New().String(),
		WindowDays: windowDays,
		Scores:     string(encoded),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.snapshots.SaveLeaderboardSnapshot(ctx, snapshot); err != nil {
		s.logger.Warn("failed to persist leaderboard snapshot", zap.Error(err))
	}
}

func (s *StatsService) publishAudit(ctx context.Context, eventType, subject string, failedChildren int, started time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Publish(ctx, models.AuditEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Subject:        subject,
		FailedChildren: failedChildren,
		DurationMs:     s.now().Sub(started).Milliseconds(),
		OccurredAt:     s.now().UTC(),
	})
}

func normalizeSubjects(subjectIDs []string) []string {
	seen := make(map[string]bool, len(subjectIDs))
	normalized := make([]string, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		normalized = append(normalized, id)
	}
	return normalized
}
