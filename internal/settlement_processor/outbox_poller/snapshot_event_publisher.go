package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/messaging/producers"
)

// SnapshotEventPublisher delivers one outbox message
type SnapshotEventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// SnapshotEventPublisherImpl archives the snapshot, emits the settlement.closed
// event and then marks the outbox row processed. Every step is safe to repeat,
// so a message that failed halfway is simply published again on the next tick.
type SnapshotEventPublisherImpl struct {
	outboxRepo outbox.Repository
	archive    settlement.SnapshotArchive
	events     producers.EventPublisher
	logger     *slog.Logger
}

func NewSnapshotEventPublisher(
	outboxRepo outbox.Repository,
	archive settlement.SnapshotArchive,
	events producers.EventPublisher,
	logger *slog.Logger,
) SnapshotEventPublisher {
	return &SnapshotEventPublisherImpl{
		outboxRepo: outboxRepo,
		archive:    archive,
		events:     events,
		logger:     logger,
	}
}

func (p *SnapshotEventPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil || event.Snapshot == nil {
		if err == nil {
			err = fmt.Errorf("event carries no snapshot")
		}
		p.logger.Error("Undecodable outbox payload", "outbox_id", message.ID, "error", err)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("decode payload of outbox %d: %w", message.ID, err)
	}

	logger := p.logger.With("outbox_id", message.ID, "settlement_id", event.SettlementID.String())
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.archive.Upsert(ctx, event.Snapshot); err != nil {
		return fmt.Errorf("archive snapshot of settlement %s: %w", event.SettlementID, err)
	}

	if err := p.events.PublishSettlementClosed(ctx, event); err != nil {
		return fmt.Errorf("publish settlement.closed for %s: %w", event.SettlementID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Event published but failed to mark outbox message PROCESSED", "error", err)
		return fmt.Errorf("event for %s published, but failed to mark outbox %d as PROCESSED: %w", event.SettlementID, message.ID, err)
	}

	logger.Info("Outbox message published", "transfers", event.TransferCount)
	return nil
}
