package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/settlement-closer/internal/domain/shared"
)

// MessagePublisher handles publishing messages to a primary topic
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// CloseRequestPublisher enqueues asynchronous close requests
type CloseRequestPublisher interface {
	PublishCloseRequest(ctx context.Context, req *shared.CloseRequest) error
	Close() error
}

// EventPublisher emits settlement lifecycle events
type EventPublisher interface {
	PublishSettlementClosed(ctx context.Context, event *shared.SettlementClosedEvent) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reasonCode, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
