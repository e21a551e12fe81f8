package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"stats-service/internal/models"
	"stats-service/internal/util"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a window.
var ErrSnapshotNotFound = errors.New("leaderboard snapshot not found")

// snapshotRepository persists leaderboard snapshots in ScyllaDB.
//
// Schema:
//
//	CREATE TABLE leaderboard_snapshots (
//	    window_days int,
//	    created_at timestamp,
//	    id uuid,
//	    scores text,
//	    PRIMARY KEY (window_days, created_at)
//	) WITH CLUSTERING ORDER BY (created_at DESC);
type snapshotRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewSnapshotRepository(client *ScyllaClient, logger *zap.Logger) SnapshotRepository {
	return &snapshotRepository{client: client, logger: logger}
}

func (r *snapshotRepository) SaveLeaderboardSnapshot(ctx context.Context, snapshot *models.LeaderboardSnapshot) error {
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	err := r.client.Session.Query(`
		INSERT INTO leaderboard_snapshots (window_days, created_at, id, scores)
		VALUES (?, ?, ?, ?)`,
		snapshot.WindowDays,
		snapshot.CreatedAt,
		snapshot.ID,
		snapshot.Scores,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to save leaderboard snapshot: %w", err)
	}

	r.logger.Debug("leaderboard snapshot saved",
		util.String("id", snapshot.ID),
		util.Int("window_days", snapshot.WindowDays))
	return nil
}

func (r *snapshotRepository) GetLatestSnapshot(ctx context.Context, windowDays int) (*models.LeaderboardSnapshot, error) {
	var snapshot models.LeaderboardSnapshot

	err := r.client.Session.Query(`
		SELECT window_days, created_at, id, scores
		FROM leaderboard_snapshots
		WHERE window_days = ?
		LIMIT 1`,
		windowDays,
	).WithContext(ctx).Scan(
		&snapshot.WindowDays,
		&snapshot.CreatedAt,
		&snapshot.ID,
		&snapshot.Scores,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load leaderboard snapshot: %w", err)
	}

	return &snapshot, nil
}
