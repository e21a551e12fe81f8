package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stats-service/internal/aggregate"
	"stats-service/internal/client"
	"stats-service/internal/config"
	"stats-service/internal/poll"
	"stats-service/internal/ratelimit"
	redisrepo "stats-service/internal/repository/redis"
	"stats-service/internal/repository/scylla"
	"stats-service/internal/service"
	"stats-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient     *client.RedisClient
	scyllaClient    *scylla.ScyllaClient
	githubClient    *client.GitHubClient
	auditProducer   *client.AuditProducer
	analyticsClient *client.AnalyticsClient

	// Core components
	limiter    *ratelimit.Limiter
	poller     *poll.Poller
	aggregator *aggregate.Aggregator

	serviceFactory *service.ServiceFactory

	sweepCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	logger := util.Get()

	factory := &Factory{config: cfg}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.DefaultTiers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limiter: %w", err)
	}
	factory.limiter = limiter

	sweepCtx, cancel := context.WithCancel(context.Background())
	factory.sweepCancel = cancel
	limiter.StartSweeper(sweepCtx, cfg.RateLimit.SweepInterval)

	poller, err := poll.New(poll.DefaultConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build poller: %w", err)
	}
	factory.poller = poller

	factory.aggregator = aggregate.New(cfg.Aggregate.Concurrency, cfg.Aggregate.WeekLimit, logger)

	var cache *redisrepo.StatsCache
	if factory.redisClient != nil {
		cache = redisrepo.NewStatsCache(factory.redisClient, cfg.Redis.CacheTTL)
	}
	var snapshots scylla.SnapshotRepository
	if factory.scyllaClient != nil {
		snapshots = scylla.NewSnapshotRepository(factory.scyllaClient, logger)
	}

	factory.serviceFactory = service.NewServiceFactory(
		factory.githubClient,
		poller,
		factory.aggregator,
		cache,
		snapshots,
		factory.auditProducer,
		logger,
	)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := util.Get()

	f.githubClient = client.NewGitHubClient(f.config, logger)

	// Redis backs the stats cache. The service degrades to recomputing every
	// request without it, so a failure is a warning, not a startup abort.
	if redisClient, err := client.NewRedisClient(f.config, logger); err != nil {
		util.Warn("Redis initialization failed - proceeding without stats cache", util.ErrorField(err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			util.Warn("Redis health check failed - proceeding without stats cache", util.ErrorField(err))
			_ = f.redisClient.Close()
			f.redisClient = nil
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB persists leaderboard snapshots.
	if scyllaClient, err := scylla.NewScyllaClient(f.config, logger); err != nil {
		util.Warn("ScyllaDB initialization failed - proceeding without snapshots", util.ErrorField(err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			util.Warn("ScyllaDB health check failed - proceeding without snapshots", util.ErrorField(err))
			f.scyllaClient.Close()
			f.scyllaClient = nil
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewAuditProducer(f.config, logger); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without audit events", util.ErrorField(err))
		} else {
			f.auditProducer = producer
		}
	}

	if f.config.Clickhouse.Enabled {
		if analytics, err := client.NewAnalyticsClient(f.config, logger); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without analytics", util.ErrorField(err))
		} else {
			f.analyticsClient = analytics
		}
	}

	return nil
}

// Config returns the loaded configuration
func (f *Factory) Config() *config.Config {
	return f.config
}

// ServiceFactory returns the service factory
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

// Limiter returns the rate limiter
func (f *Factory) Limiter() *ratelimit.Limiter {
	return f.limiter
}

// AuditProducer returns the Kafka audit producer, or nil when disabled
func (f *Factory) AuditProducer() *client.AuditProducer {
	return f.auditProducer
}

// AnalyticsClient returns the ClickHouse client, or nil when disabled
func (f *Factory) AnalyticsClient() *client.AnalyticsClient {
	return f.analyticsClient
}

// Close shuts down all clients exactly once
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.sweepCancel != nil {
			f.sweepCancel()
		}
		if f.auditProducer != nil {
			_ = f.auditProducer.Close()
		}
		if f.analyticsClient != nil {
			_ = f.analyticsClient.Close()
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			_ = f.redisClient.Close()
		}
		util.Info("Factory closed")
		util.Sync()
	})
}
