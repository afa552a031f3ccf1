package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
)

var (
	ErrMissingSettlementID = errors.New("settlement id is required")
	ErrMissingUserID       = errors.New("user id is required")
)

// CloseRequest defines a Kafka message asking the processor to close a settlement
type CloseRequest struct {
	RequestID     uuid.UUID `json:"request_id"`
	SettlementID  uuid.UUID `json:"settlement_id"`
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Validate checks the fields the processor cannot work without
func (r *CloseRequest) Validate() error {
	if r.SettlementID == uuid.Nil {
		return ErrMissingSettlementID
	}
	if r.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

// SettlementClosedEvent is published once per closed settlement
type SettlementClosedEvent struct {
	EventID          uuid.UUID            `json:"event_id"`
	Type             string               `json:"type"`
	SettlementID     uuid.UUID            `json:"settlement_id"`
	AlgorithmVersion string               `json:"algorithm_version"`
	ClosedAt         time.Time            `json:"closed_at"`
	TransferCount    int                  `json:"transfer_count"`
	CorrelationID    string               `json:"correlation_id,omitempty"`
	Snapshot         *settlement.Snapshot `json:"snapshot"`
}

// NewSettlementClosedEvent builds the event for a freshly written snapshot
func NewSettlementClosedEvent(snap *settlement.Snapshot, correlationID string) *SettlementClosedEvent {
	return &SettlementClosedEvent{
		EventID:          uuid.New(),
		Type:             EventTypeSettlementClosed,
		SettlementID:     snap.SettlementID,
		AlgorithmVersion: snap.AlgorithmVersion,
		ClosedAt:         snap.CreatedAt,
		TransferCount:    len(snap.Transfers),
		CorrelationID:    correlationID,
		Snapshot:         snap,
	}
}
