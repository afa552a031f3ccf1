package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/domain/shared"
)

// ErrBreakerOpen is returned while the event breaker rejects writes
var ErrBreakerOpen = errors.New("settlement event publisher circuit is open")

// SettlementEventProducer publishes settlement.closed events. Writes go through a
// circuit breaker so an unavailable broker fails fast and the outbox retries later.
type SettlementEventProducer struct {
	logger  *slog.Logger
	writer  KafkaWriter
	topic   string
	breaker *gobreaker.CircuitBreaker
}

func NewSettlementEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, breakerCfg config.BreakerConfig) (*SettlementEventProducer, error) {
	if cfg.SettlementEventsTopic == "" {
		return nil, fmt.Errorf("kafka settlement events topic is not configured")
	}

	if err := ensureTopic(cfg, cfg.SettlementEventsTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure settlement events topic %s exists: %w", cfg.SettlementEventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.SettlementEventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return newSettlementEventProducer(logger, writer, cfg.SettlementEventsTopic, breakerCfg), nil
}

func newSettlementEventProducer(logger *slog.Logger, writer KafkaWriter, topic string, breakerCfg config.BreakerConfig) *SettlementEventProducer {
	return &SettlementEventProducer{
		logger:  logger,
		writer:  writer,
		topic:   topic,
		breaker: NewBreaker("settlement-events", breakerCfg, logger),
	}
}

// NewBreaker builds a breaker that trips after the configured run of consecutive failures
func NewBreaker(name string, cfg config.BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
}

func (p *SettlementEventProducer) PublishSettlementClosed(ctx context.Context, event *shared.SettlementClosedEvent) error {
	return p.Publish(ctx, event.SettlementID.String(), event)
}

func (p *SettlementEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := encodeJSON(value)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(shared.EventTypeSettlementClosed)},
		},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.Warn("Settlement event rejected by circuit breaker", "topic", p.topic, "key", key)
			return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
		p.logger.Error("Failed to publish settlement event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish settlement event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published settlement event", "topic", p.topic, "key", key)
	return nil
}

func (p *SettlementEventProducer) Close() error {
	p.logger.Info("Closing settlement event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
