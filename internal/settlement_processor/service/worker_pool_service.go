package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/settlement-closer/internal/domain/settlement"
)

// WorkerPoolFinalizer runs each close as an ants task and waits for its result.
// A panicking close becomes an error instead of killing the process, and
// Shutdown drains in-flight closes. The Kafka consumer handles one message at a
// time, so it keeps at most one task running; Size caps callers that share the pool.
type WorkerPoolFinalizer struct {
	base   Finalizer
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

type closeResult struct {
	outcome *settlement.CloseOutcome
	err     error
}

func NewWorkerPoolFinalizer(base Finalizer, config WorkerPoolConfig, logger *slog.Logger) (*WorkerPoolFinalizer, error) {
	// ants treats a non-positive size as unbounded
	if config.Size <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", config.Size)
	}
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolFinalizer{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Close submits the command to the pool and blocks until it completes or ctx ends
func (s *WorkerPoolFinalizer) Close(ctx context.Context, cmd CloseCommand) (*settlement.CloseOutcome, error) {
	logger := s.logger.With("settlement_id", cmd.SettlementID.String())
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	resultChan := make(chan closeResult, 1)

	err := s.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Panic while closing settlement", "panic", p)
				resultChan <- closeResult{err: fmt.Errorf("close of settlement %s panicked: %v", cmd.SettlementID, p)}
			}
		}()
		outcome, err := s.base.Close(ctx, cmd)
		resultChan <- closeResult{outcome: outcome, err: err}
	})
	if err != nil {
		logger.Error("Failed to submit close to worker pool", "error", err)
		return nil, fmt.Errorf("submit close of settlement %s: %w", cmd.SettlementID, err)
	}

	select {
	case res := <-resultChan:
		return res.outcome, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown releases the pool; running tasks are allowed to finish.
func (s *WorkerPoolFinalizer) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolFinalizer) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolFinalizer) Capacity() int {
	return s.pool.Cap()
}
