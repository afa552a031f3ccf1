package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/metrics"
)

// Poller hands pending outbox messages to the publisher on every tick
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        SnapshotEventPublisher
	metrics          *metrics.OutboxMetrics
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher SnapshotEventPublisher,
	outboxMetrics *metrics.OutboxMetrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		metrics:          outboxMetrics,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping due to context cancellation")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	p.metrics.ObserveBatch(len(messages))

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.handle(ctx, msg)
	}
	return nil
}

func (p *Poller) handle(ctx context.Context, msg *outbox.Message) {
	logger := p.logger.With("outbox_id", msg.ID, "settlement_id", msg.SettlementID.String())

	err := p.publisher.Publish(ctx, msg)
	if err == nil {
		p.metrics.ObservePublish(metrics.PublishSucceeded)
		return
	}

	logger.Error("Failed to publish outbox message", "current_attempts", msg.Attempts, "error", err)

	if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
		logger.Error("Failed to increment attempts for outbox message", "error", errInc)
		p.metrics.ObservePublish(metrics.PublishRetried)
		return
	}

	if msg.Attempts+1 < p.maxRetryAttempts {
		p.metrics.ObservePublish(metrics.PublishRetried)
		return
	}

	logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
		"attempts_made", msg.Attempts+1)
	if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "error", errUpdate)
	}
	p.metrics.ObservePublish(metrics.PublishFailed)
}
