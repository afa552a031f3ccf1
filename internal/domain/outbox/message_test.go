package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
)

func newEvent() *shared.SettlementClosedEvent {
	snap := settlement.NewSnapshot(uuid.New(),
		settlement.BalanceMap{"A": 1500, "B": -1000, "C": 500, "D": -1000},
		[]settlement.Transfer{
			{From: "B", To: "A", AmountCents: 1000},
			{From: "D", To: "A", AmountCents: 500},
			{From: "D", To: "C", AmountCents: 500},
		},
		time.Now().UTC().Truncate(time.Millisecond))
	return shared.NewSettlementClosedEvent(snap, "corr")
}

func TestNewMessage(t *testing.T) {
	event := newEvent()

	beforeCreation := time.Now()
	msg, err := NewMessage(event)
	afterCreation := time.Now()

	require.NoError(t, err)
	assert.Equal(t, event.EventID, msg.EventID)
	assert.Equal(t, event.SettlementID, msg.SettlementID)
	assert.Equal(t, shared.OutboxStatusPending, msg.Status)
	assert.Equal(t, 0, msg.Attempts)
	assert.Nil(t, msg.LastAttemptAt)
	assert.WithinDuration(t, beforeCreation, msg.CreatedAt, afterCreation.Sub(beforeCreation)+time.Millisecond)
}

func TestMessage_GetEvent(t *testing.T) {
	event := newEvent()
	msg, err := NewMessage(event)
	require.NoError(t, err)

	decoded, err := msg.GetEvent()
	require.NoError(t, err)
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, 3, decoded.TransferCount)
	require.NotNil(t, decoded.Snapshot)
	assert.Equal(t, event.Snapshot.Transfers, decoded.Snapshot.Transfers)
	assert.Equal(t, event.Snapshot.Balances, decoded.Snapshot.Balances)
	assert.True(t, event.ClosedAt.Equal(decoded.ClosedAt))
}

func TestMessage_GetEvent_BadPayload(t *testing.T) {
	msg := &Message{Payload: []byte("{not json")}
	_, err := msg.GetEvent()
	assert.Error(t, err)
}

func TestMessage_StatusTransitions(t *testing.T) {
	t.Run("IncrementAttempts", func(t *testing.T) {
		msg := &Message{Attempts: 1}
		msg.IncrementAttempts()
		assert.Equal(t, 2, msg.Attempts)
		assert.NotNil(t, msg.LastAttemptAt)
	})

	t.Run("MarkAsProcessed", func(t *testing.T) {
		msg := &Message{Status: shared.OutboxStatusPending}
		msg.MarkAsProcessed()
		assert.Equal(t, shared.OutboxStatusProcessed, msg.Status)
		assert.NotNil(t, msg.LastAttemptAt)
	})

	t.Run("MarkAsFailed", func(t *testing.T) {
		msg := &Message{Status: shared.OutboxStatusPending}
		msg.MarkAsFailed()
		assert.Equal(t, shared.OutboxStatusFailedToPublish, msg.Status)
		assert.NotNil(t, msg.LastAttemptAt)
	})
}
