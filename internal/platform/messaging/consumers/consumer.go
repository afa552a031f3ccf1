package consumers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/settlement-closer/internal/config"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// messageReader is the subset of *kafka.Reader the consumer loop needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	fetchRetryDelay  = time.Second
	handlerRetryBase = 200 * time.Millisecond
	handlerRetryMax  = 30 * time.Second
)

// KafkaConsumer implements Consumer using Kafka
type KafkaConsumer struct {
	reader    messageReader
	logger    *slog.Logger
	done      chan struct{}
	retryBase time.Duration
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := kafka.FirstOffset
	if cfg.StartOffset == kafka.LastOffset {
		startOffset = kafka.LastOffset
	}

	return &KafkaConsumer{
		logger:    logger,
		done:      make(chan struct{}),
		retryBase: handlerRetryBase,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.CloseRequestTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts the fetch loop in a goroutine. A message the handler fails on
// is retried with backoff until it succeeds or ctx ends, and its offset is only
// committed after success. The reader never moves past an unhandled message.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	if c.done == nil {
		c.done = make(chan struct{})
	}
	log := c.logger.With("topic", topic, "group_id", groupID)
	log.Info("Subscribed to Kafka topic")

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					log.Info("Context canceled, stopping consumer")
					return
				}
				log.Error("Failed to fetch message from Kafka", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(fetchRetryDelay):
				}
				continue
			}

			msgLog := log.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
			msgLog.Debug("Received message from Kafka")

			if !c.handle(ctx, msg, handler, msgLog) {
				msgLog.Info("Context canceled before message was handled, offset not committed")
				return
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				msgLog.Error("Failed to commit message after successful processing", "error", err)
			} else {
				msgLog.Debug("Message committed successfully")
			}
		}
	}()

	return nil
}

// handle runs handler until it succeeds. It returns false if ctx ends first.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler, log *slog.Logger) bool {
	for attempt := 0; ; attempt++ {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		delay := retryDelay(c.retryBase, attempt)
		log.Error("Failed to process message, retrying", "error", err, "attempt", attempt+1, "retry_in", delay)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// retryDelay doubles base per attempt, capped at handlerRetryMax
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = handlerRetryBase
	}
	delay := base
	for i := 0; i < attempt && delay < handlerRetryMax; i++ {
		delay *= 2
	}
	if delay > handlerRetryMax {
		delay = handlerRetryMax
	}
	return delay
}

// Done is closed when the fetch loop has exited
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
