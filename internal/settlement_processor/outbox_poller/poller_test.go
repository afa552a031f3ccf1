package outbox_poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/metrics"
)

func newTestPoller(repo outbox.Repository, publisher SnapshotEventPublisher, m *metrics.OutboxMetrics) *Poller {
	cfg := &config.OutboxConfig{
		PollingInterval:  10 * time.Millisecond,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}
	return NewPoller(cfg, repo, publisher, m, discardLogger())
}

func TestPoller_ProcessPendingMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishesEveryMessage", func(t *testing.T) {
		repo, publisher := new(MockOutboxRepo), new(MockSnapshotEventPublisher)
		reg := prometheus.NewRegistry()
		m1, _ := pendingMessage(t, 1)
		m2, _ := pendingMessage(t, 2)

		repo.On("GetPending", ctx, 10).Return([]*outbox.Message{m1, m2}, nil).Once()
		publisher.On("Publish", ctx, m1).Return(nil).Once()
		publisher.On("Publish", ctx, m2).Return(nil).Once()

		err := newTestPoller(repo, publisher, metrics.NewOutboxMetrics(reg)).processPendingMessages(ctx)

		require.NoError(t, err)
		publisher.AssertExpectations(t)
		count, err := testutil.GatherAndCount(reg, "settlement_outbox_messages_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("FailureIncrementsAttempts", func(t *testing.T) {
		repo, publisher := new(MockOutboxRepo), new(MockSnapshotEventPublisher)
		m1, _ := pendingMessage(t, 1)

		repo.On("GetPending", ctx, 10).Return([]*outbox.Message{m1}, nil).Once()
		publisher.On("Publish", ctx, m1).Return(errors.New("kafka down")).Once()
		repo.On("IncrementAttempts", ctx, int64(1)).Return(nil).Once()

		err := newTestPoller(repo, publisher, nil).processPendingMessages(ctx)

		require.NoError(t, err)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("MaxAttemptsMarksFailed", func(t *testing.T) {
		repo, publisher := new(MockOutboxRepo), new(MockSnapshotEventPublisher)
		m1, _ := pendingMessage(t, 1)
		m1.Attempts = 2

		repo.On("GetPending", ctx, 10).Return([]*outbox.Message{m1}, nil).Once()
		publisher.On("Publish", ctx, m1).Return(errors.New("kafka down")).Once()
		repo.On("IncrementAttempts", ctx, int64(1)).Return(nil).Once()
		repo.On("UpdateStatus", ctx, int64(1), shared.OutboxStatusFailedToPublish).Return(nil).Once()

		err := newTestPoller(repo, publisher, nil).processPendingMessages(ctx)

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("GetPendingError", func(t *testing.T) {
		repo, publisher := new(MockOutboxRepo), new(MockSnapshotEventPublisher)
		dbErr := errors.New("db down")
		repo.On("GetPending", ctx, 10).Return(nil, dbErr).Once()

		err := newTestPoller(repo, publisher, nil).processPendingMessages(ctx)

		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPoller_StartStopsOnCancel(t *testing.T) {
	repo, publisher := new(MockOutboxRepo), new(MockSnapshotEventPublisher)
	polled := make(chan struct{})
	var once sync.Once
	repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Run(func(mock.Arguments) {
		once.Do(func() { close(polled) })
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestPoller(repo, publisher, nil).Start(ctx)
		close(done)
	}()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("poller never polled")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
