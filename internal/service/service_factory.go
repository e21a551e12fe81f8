package service

import (
	"go.uber.org/zap"

	"stats-service/internal/aggregate"
	"stats-service/internal/client"
	"stats-service/internal/poll"
	redisrepo "stats-service/internal/repository/redis"
	"stats-service/internal/repository/scylla"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	upstream     Upstream
	poller       *poll.Poller
	aggregator   *aggregate.Aggregator
	cache        *redisrepo.StatsCache
	snapshots    scylla.SnapshotRepository
	audit        *client.AuditProducer
	logger       *zap.Logger
	statsService *StatsService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	upstream Upstream,
	poller *poll.Poller,
	aggregator *aggregate.Aggregator,
	cache *redisrepo.StatsCache,
	snapshots scylla.SnapshotRepository,
	audit *client.AuditProducer,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		upstream:   upstream,
		poller:     poller,
		aggregator: aggregator,
		cache:      cache,
		snapshots:  snapshots,
		audit:      audit,
		logger:     logger,
	}
}

// StatsService returns the stats service instance (singleton)
func (f *ServiceFactory) StatsService() *StatsService {
	if f.statsService == nil {
		f.statsService = NewStatsService(
			f.upstream,
			f.poller,
			f.aggregator,
			f.cache,
			f.snapshots,
			f.audit,
			f.logger,
		)
	}
	return f.statsService
}
