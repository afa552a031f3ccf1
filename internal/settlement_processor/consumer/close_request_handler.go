package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/messaging/producers"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

// ReasonInvalidRequest marks close requests that could not be decoded or lack required fields
const ReasonInvalidRequest = "INVALID_REQUEST"

// CloseRequestHandler runs the finalizer for close requests read from Kafka
type CloseRequestHandler struct {
	finalizer service.Finalizer
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewCloseRequestHandler(
	logger *slog.Logger,
	finalizer service.Finalizer,
	producer producers.DeadLetterPublisher,
) *CloseRequestHandler {
	return &CloseRequestHandler{
		finalizer: finalizer,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage returns nil for every message that reached a final outcome,
// including rejected ones sent to the DLQ. Errors leave the offset uncommitted.
func (h *CloseRequestHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.CloseRequest
	if err := json.Unmarshal(value, &request); err != nil {
		h.logger.Error("Failed to unmarshal close request", "error", err, "message_key", string(key))
		return h.deadLetter(ctx, key, value, ReasonInvalidRequest, fmt.Errorf("unmarshal close request: %w", err))
	}
	if err := request.Validate(); err != nil {
		h.logger.Error("Invalid close request", "error", err, "message_key", string(key))
		return h.deadLetter(ctx, key, value, ReasonInvalidRequest, err)
	}

	logger := h.logger.With("request_id", request.RequestID.String(), "settlement_id", request.SettlementID.String())
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}
	logger.Info("Received close request", "user_id", request.UserID)

	outcome, err := h.finalizer.Close(ctx, service.CloseCommand{
		SettlementID:  request.SettlementID,
		UserID:        request.UserID,
		CorrelationID: request.CorrelationID,
	})
	if err != nil {
		if settlement.IsValidationError(err) {
			logger.Warn("Close request rejected", "reason", settlement.ReasonCode(err))
			return h.deadLetter(ctx, key, value, settlement.ReasonCode(err), err)
		}
		if errors.Is(err, settlement.ErrInternalConsistency{}) {
			logger.Error("Settlement data is inconsistent, close request parked", "error", err)
			return h.deadLetter(ctx, key, value, settlement.ReasonInternalConsistency, err)
		}
		logger.Error("Failed to close settlement", "error", err)
		return fmt.Errorf("closing settlement %s failed: %w", request.SettlementID, err)
	}

	logger.Info("Close request processed",
		"replayed", outcome.Replayed,
		"transfers", len(outcome.Transfers))
	return nil
}

// deadLetter parks a message that can never succeed. Without a DLQ it is logged
// and dropped. If publishing fails the cause is returned so the consumer retries.
func (h *CloseRequestHandler) deadLetter(ctx context.Context, key, value []byte, reasonCode string, cause error) error {
	if h.producer == nil {
		h.logger.Warn("No DLQ configured, dropping message",
			"reason", reasonCode,
			"error", cause,
			"message_key", string(key))
		return nil
	}
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reasonCode, cause.Error()); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key))
		return cause
	}
	return nil
}
