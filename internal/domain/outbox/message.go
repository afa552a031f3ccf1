package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/shared"
)

// Message stores a settlement event until it has been archived and published
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	SettlementID  uuid.UUID           `json:"settlement_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *shared.SettlementClosedEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:      event.EventID,
		SettlementID: event.SettlementID,
		Payload:      payload,
		Status:       shared.OutboxStatusPending,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetEvent decodes the settlement event carried in the payload
func (m *Message) GetEvent() (*shared.SettlementClosedEvent, error) {
	var event shared.SettlementClosedEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
