package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/settlement-closer/internal/domain/settlement"
)

type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) Close(ctx context.Context, cmd CloseCommand) (*settlement.CloseOutcome, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CloseOutcome), args.Error(1)
}

func TestWorkerPoolFinalizer_Close(t *testing.T) {
	base := new(MockFinalizer)
	pool, err := NewWorkerPoolFinalizer(base, WorkerPoolConfig{Size: 2}, discardLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	cmd := CloseCommand{SettlementID: uuid.New(), UserID: "owner", CorrelationID: "corr"}

	t.Run("ReturnsOutcome", func(t *testing.T) {
		want := &settlement.CloseOutcome{SettlementID: cmd.SettlementID, Status: settlement.StatusClosed}
		base.On("Close", mock.Anything, cmd).Return(want, nil).Once()

		got, err := pool.Close(context.Background(), cmd)
		require.NoError(t, err)
		assert.Same(t, want, got)
	})

	t.Run("ReturnsError", func(t *testing.T) {
		failure := errors.New("processing error")
		base.On("Close", mock.Anything, cmd).Return(nil, failure).Once()

		got, err := pool.Close(context.Background(), cmd)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, failure)
	})

	base.AssertExpectations(t)
	assert.Equal(t, 2, pool.Capacity())
}

type panickingFinalizer struct{}

func (panickingFinalizer) Close(context.Context, CloseCommand) (*settlement.CloseOutcome, error) {
	panic("boom")
}

func TestWorkerPoolFinalizer_RecoversPanics(t *testing.T) {
	pool, err := NewWorkerPoolFinalizer(panickingFinalizer{}, WorkerPoolConfig{Size: 1}, discardLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	_, err = pool.Close(context.Background(), CloseCommand{SettlementID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

// blockingFinalizer counts concurrent calls and waits for release
type blockingFinalizer struct {
	mu      sync.Mutex
	active  int
	peak    int
	release chan struct{}
}

func (b *blockingFinalizer) Close(_ context.Context, cmd CloseCommand) (*settlement.CloseOutcome, error) {
	b.mu.Lock()
	b.active++
	if b.active > b.peak {
		b.peak = b.active
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return &settlement.CloseOutcome{SettlementID: cmd.SettlementID}, nil
}

func TestWorkerPoolFinalizer_BoundsConcurrency(t *testing.T) {
	base := &blockingFinalizer{release: make(chan struct{})}
	pool, err := NewWorkerPoolFinalizer(base, WorkerPoolConfig{Size: 2}, discardLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Close(context.Background(), CloseCommand{SettlementID: uuid.New()})
			assert.NoError(t, err)
		}()
	}

	assert.Eventually(t, func() bool { return pool.Running() == 2 }, time.Second, 10*time.Millisecond)
	close(base.release)
	wg.Wait()

	assert.LessOrEqual(t, base.peak, 2)
}

func TestWorkerPoolFinalizer_ContextCancelled(t *testing.T) {
	base := &blockingFinalizer{release: make(chan struct{})}
	pool, err := NewWorkerPoolFinalizer(base, WorkerPoolConfig{Size: 1}, discardLogger())
	require.NoError(t, err)
	defer func() {
		close(base.release)
		pool.Shutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = pool.Close(ctx, CloseCommand{SettlementID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewWorkerPoolFinalizer_RejectsNonPositiveSize(t *testing.T) {
	_, err := NewWorkerPoolFinalizer(new(MockFinalizer), WorkerPoolConfig{Size: 0}, discardLogger())
	assert.Error(t, err)
}
