package components

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockSettlementRepository struct {
	mock.Mock
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Settlement), args.Error(1)
}

func (m *MockSettlementRepository) MarkClosed(ctx context.Context, id uuid.UUID, expectedVersion int, closedAt time.Time) error {
	args := m.Called(ctx, id, expectedVersion, closedAt)
	return args.Error(0)
}

func (m *MockSettlementRepository) WithTx(tx pgx.Tx) settlement.Repository {
	return m
}

type MockParticipantRepository struct {
	mock.Mock
}

func (m *MockParticipantRepository) ListIDs(ctx context.Context, settlementID uuid.UUID) ([]settlement.ParticipantID, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.ParticipantID), args.Error(1)
}

func (m *MockParticipantRepository) List(ctx context.Context, settlementID uuid.UUID) ([]settlement.Participant, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Participant), args.Error(1)
}

type MockExpenseRepository struct {
	mock.Mock
}

func (m *MockExpenseRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]settlement.Expense, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Expense), args.Error(1)
}

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snap *settlement.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*settlement.Snapshot, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) WithTx(tx pgx.Tx) settlement.SnapshotRepository {
	return m
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*outbox.Message, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Message), args.Error(1)
}

func (m *MockOutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return m
}
