package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"stats-service/internal/config"
	"stats-service/internal/models"
	"stats-service/internal/util"
)

// AuditProducer publishes audit events for orchestrator runs and rate-limit
// denials. Publishing is best effort: the service runs fine without Kafka.
type AuditProducer struct {
	Writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewAuditProducer(cfg *config.Config, logger *zap.Logger) (*AuditProducer, error) {
	kafkaConfig := cfg.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaConfig.Brokers...),
		Topic:        kafkaConfig.AuditTopic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("failed to write kafka messages",
					zap.Error(err),
					zap.Int("message_count", len(messages)))
			}
		},
	}

	util.Info("Kafka audit producer initialized",
		zap.Strings("brokers", kafkaConfig.Brokers),
		zap.String("topic", kafkaConfig.AuditTopic))

	return &AuditProducer{
		Writer: writer,
		topic:  kafkaConfig.AuditTopic,
		logger: logger,
	}, nil
}

func (p *AuditProducer) Close() error {
	if p.Writer != nil {
		if err := p.Writer.Close(); err != nil {
			util.Error("failed to close Kafka producer", zap.Error(err))
			return err
		}
		util.Info("Kafka producer closed")
	}
	return nil
}

// Publish encodes and writes one audit event. Errors are logged, never
// propagated: audit is an observability concern, not a correctness one.
func (p *AuditProducer) Publish(ctx context.Context, event models.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode audit event", zap.Error(err))
		return
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Type),
		Value: payload,
	})
	if err != nil {
		p.logger.Warn("failed to publish audit event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	p.logger.Debug("published audit event",
		zap.String("type", event.Type),
		zap.String("subject", event.Subject))
}

// HealthCheck dials the first broker and lists partitions.
func (p *AuditProducer) HealthCheck(ctx context.Context) error {
	dialer := &kafka.Dialer{
		Timeout:   5 * time.Second,
		DualStack: true,
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.Writer.Addr.String())
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ReadPartitions()
	return err
}
