package aggregate

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"stats-service/internal/models"
)

// Partial is one child's contribution to an aggregation.
type Partial struct {
	WeekBuckets []models.WeekBucket
	Languages   models.LanguageBytes
}

// Result is the merged outcome of a fan-out. FailedChildren counts children
// whose fetch failed; their contribution is the neutral element, so partial
// data degrades gracefully instead of failing the whole aggregation.
type Result struct {
	WeekBuckets    []models.WeekBucket
	Languages      models.LanguageBytes
	FailedChildren int
}

// FetchFunc retrieves one child's partial result.
type FetchFunc func(ctx context.Context, child models.Repo) (Partial, error)

// Aggregator fans out per-child fetches and merges their results
// deterministically.
type Aggregator struct {
	// concurrency caps simultaneous fetches; 0 means unbounded.
	concurrency int
	// weekLimit truncates the merged sequence to the most recent N weeks.
	weekLimit int
	logger    *zap.Logger
}

// New builds an aggregator with the given fan-out cap and week truncation.
func New(concurrency, weekLimit int, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		concurrency: concurrency,
		weekLimit:   weekLimit,
		logger:      logger,
	}
}

// Aggregate issues one fetch per child, waits for every child to settle, and
// folds the partials. Each result lands in its child's own slot, so the merge
// input order is fixed by child index and never by completion order.
func (a *Aggregator) Aggregate(ctx context.Context, children []models.Repo, fetch FetchFunc) Result {
	partials := make([]*Partial, len(children))

	var sem *semaphore.Weighted
	if a.concurrency > 0 {
		sem = semaphore.NewWeighted(int64(a.concurrency))
	}

	var group errgroup.Group
	for i, child := range children {
		i, child := i, child
		group.Go(func() error {
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					a.logger.Warn("child fetch not started",
						zap.String("repo", child.FullName()),
						zap.Error(err))
					return nil
				}
				defer sem.Release(1)
			}

			partial, err := fetch(ctx, child)
			if err != nil {
				a.logger.Warn("child fetch failed",
					zap.String("repo", child.FullName()),
					zap.Error(err))
				return nil
			}
			partials[i] = &partial
			return nil
		})
	}
	// Goroutines isolate their own failures, so Wait only joins the barrier.
	_ = group.Wait()

	result := Result{}
	bucketGroups := make([][]models.WeekBucket, 0, len(children))
	languageGroups := make([]models.LanguageBytes, 0, len(children))
	for _, partial := range partials {
		if partial == nil {
			result.FailedChildren++
			continue
		}
		bucketGroups = append(bucketGroups, partial.WeekBuckets)
		languageGroups = append(languageGroups, partial.Languages)
	}

	result.WeekBuckets = TruncateWeeks(MergeWeekBuckets(bucketGroups...), a.weekLimit)
	result.Languages = MergeLanguages(languageGroups...)
	return result
}
