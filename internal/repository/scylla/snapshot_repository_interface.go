package scylla

import (
	"context"

	"stats-service/internal/models"
)

// SnapshotRepository is the thin persistence interface the orchestrators see.
// The core never touches storage directly.
type SnapshotRepository interface {
	SaveLeaderboardSnapshot(ctx context.Context, snapshot *models.LeaderboardSnapshot) error
	GetLatestSnapshot(ctx context.Context, windowDays int) (*models.LeaderboardSnapshot, error)
}
