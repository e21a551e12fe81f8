package client

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"stats-service/internal/config"
	"stats-service/internal/models"
	"stats-service/internal/util"
)

// AnalyticsClient writes request metrics to ClickHouse. Optional: when
// disabled or unreachable the service runs without analytics.
type AnalyticsClient struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
	logger *zap.Logger
}

func NewAnalyticsClient(cfg *config.Config, logger *zap.Logger) (*AnalyticsClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{chConfig.URL},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     20,
		MaxIdleConns:     10,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse analytics client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database))

	return &AnalyticsClient{
		conn:   conn,
		config: &chConfig,
		logger: logger,
	}, nil
}

func (c *AnalyticsClient) Close() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			util.Error("failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse connection closed")
	}
	return nil
}

// RecordRequest inserts one request metric row. Fire and forget: failures
// are logged and dropped.
func (c *AnalyticsClient) RecordRequest(ctx context.Context, metric models.RequestMetric) {
	err := c.conn.AsyncInsert(ctx, `
		INSERT INTO request_metrics
			(endpoint, identifier, status, allowed, duration_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		false,
		metric.Endpoint,
		metric.Identifier,
		metric.Status,
		metric.Allowed,
		metric.DurationMs,
		metric.OccurredAt,
	)
	if err != nil {
		c.logger.Warn("failed to record request metric",
			zap.String("endpoint", metric.Endpoint),
			zap.Error(err))
	}
}

// HealthCheck pings the ClickHouse cluster.
func (c *AnalyticsClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}
