package producers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/domain/shared"
)

// CloseRequestProducer writes close requests keyed by settlement id, so every
// request for one settlement lands on the same partition in order.
type CloseRequestProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewCloseRequestProducer ensures the request topic exists and returns a synchronous producer
func NewCloseRequestProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*CloseRequestProducer, error) {
	if cfg.CloseRequestTopic == "" {
		return nil, fmt.Errorf("kafka close request topic is not configured")
	}

	if err := ensureTopic(cfg, cfg.CloseRequestTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure close request topic %s exists: %w", cfg.CloseRequestTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.CloseRequestTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false, // the gateway only answers 202 once the broker has the request
		WriteTimeout: cfg.MaxWait,
	}

	return &CloseRequestProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.CloseRequestTopic,
	}, nil
}

func (p *CloseRequestProducer) PublishCloseRequest(ctx context.Context, req *shared.CloseRequest) error {
	return p.Publish(ctx, req.SettlementID.String(), req)
}

func (p *CloseRequestProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := encodeJSON(value)
	if err != nil {
		return fmt.Errorf("failed to marshal close request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish close request",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish close request to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published close request",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *CloseRequestProducer) Close() error {
	p.logger.Info("Closing close request producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
