package ratelimit

import (
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"stats-service/internal/models"
)

// shardCount spreads window state across independently locked shards so
// concurrent checks for unrelated identifiers never contend.
const shardCount = 32

// windowStore is the process-local home of all rate windows. State is lost on
// restart; rate limiting is a soft protection, not a durability guarantee.
type windowStore struct {
	shards [shardCount]*storeShard
}

type storeShard struct {
	mu      sync.Mutex
	windows map[string]*models.RateWindow
}

func newWindowStore() *windowStore {
	store := &windowStore{}
	for i := range store.shards {
		store.shards[i] = &storeShard{windows: make(map[string]*models.RateWindow)}
	}
	return store
}

// shardFor picks a shard by consistent hash of the window key.
func (s *windowStore) shardFor(key string) *storeShard {
	return s.shards[murmur3.Sum64([]byte(key))%shardCount]
}

// Increment bumps the counter for key, resetting the window first if it has
// expired. The read-increment-decide sequence runs under the shard lock, so
// the returned count is exact under concurrent invocation.
func (s *windowStore) Increment(key string, now time.Time, window time.Duration) (count int, resetAt time.Time) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.windows[key]
	if !ok || !now.Before(state.ResetAt) {
		state = &models.RateWindow{
			Identifier: key,
			Count:      1,
			ResetAt:    now.Add(window),
		}
		shard.windows[key] = state
		return state.Count, state.ResetAt
	}

	state.Count++
	return state.Count, state.ResetAt
}

// Sweep removes windows whose reset time has passed and reports how many were
// dropped. Expired windows that still receive traffic are reset in place by
// Increment, so everything removed here is genuinely idle.
func (s *windowStore) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, state := range shard.windows {
			if !now.Before(state.ResetAt) {
				delete(shard.windows, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len reports the number of live windows across all shards.
func (s *windowStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.windows)
		shard.mu.Unlock()
	}
	return total
}
