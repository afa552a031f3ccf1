package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/settlement-closer/internal/calculator"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/lock"
	"github.com/settlement-closer/internal/platform/metrics"
)

// FinalizerImpl runs validation, aggregation, minimization and the atomic
// transition for one close attempt. It never retries internally.
type FinalizerImpl struct {
	validator ClosingValidator
	expenses  ExpenseReader
	store     SnapshotStore
	locker    lock.Locker
	metrics   *metrics.CloseMetrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewFinalizer(
	validator ClosingValidator,
	expenses ExpenseReader,
	store SnapshotStore,
	locker lock.Locker,
	closeMetrics *metrics.CloseMetrics,
	logger *slog.Logger,
) *FinalizerImpl {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &FinalizerImpl{
		validator: validator,
		expenses:  expenses,
		store:     store,
		locker:    locker,
		metrics:   closeMetrics,
		logger:    logger,
		now:       closeTime,
	}
}

// closeTime is truncated to what both TIMESTAMPTZ and BSON datetimes keep, so a
// replayed outcome carries the same ClosedAt as the original close.
func closeTime() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (f *FinalizerImpl) Close(ctx context.Context, cmd CloseCommand) (*settlement.CloseOutcome, error) {
	start := time.Now()
	logger := f.logger.With("settlement_id", cmd.SettlementID.String(), "user_id", cmd.UserID)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	// The lock only reduces wasted work under contention; the CAS in the store decides the winner.
	handle, err := f.locker.Acquire(ctx, lock.SettlementCloseKey(cmd.SettlementID))
	if err != nil {
		logger.Warn("Close lock unavailable, proceeding without it", "error", err)
	} else {
		defer func() {
			if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				logger.Warn("Failed to release close lock", "error", unlockErr)
			}
		}()
	}

	outcome, err := f.close(ctx, cmd, logger)
	f.observe(outcome, err, time.Since(start))
	return outcome, err
}

func (f *FinalizerImpl) close(ctx context.Context, cmd CloseCommand, logger *slog.Logger) (*settlement.CloseOutcome, error) {
	closing, err := f.validator.Validate(ctx, cmd)
	if err != nil {
		if errors.Is(err, settlement.ErrSettlementClosed{}) {
			logger.Info("Settlement already closed, replaying stored snapshot")
			return f.replay(ctx, cmd, logger)
		}
		if settlement.IsValidationError(err) {
			logger.Info("Close request rejected", "reason", settlement.ReasonCode(err))
			return nil, err
		}
		logger.Error("Failed to validate close request", "error", err)
		return nil, fmt.Errorf("validate close of settlement %s: %w", cmd.SettlementID, err)
	}

	expenses, err := f.expenses.ListExpenses(ctx, cmd.SettlementID)
	if err != nil {
		logger.Error("Failed to load expenses", "error", err)
		return nil, fmt.Errorf("load expenses of settlement %s: %w", cmd.SettlementID, err)
	}

	balances, err := calculator.AggregateBalances(closing.ParticipantIDs, expenses)
	if err != nil {
		return nil, f.consistencyFailure(cmd, err, logger,
			"participants", len(closing.ParticipantIDs),
			"expenses", len(expenses))
	}

	transfers, err := calculator.MinimizeTransfers(balances)
	if err != nil {
		return nil, f.consistencyFailure(cmd, err, logger, "balances", balances)
	}

	if residue := balances.Apply(transfers); residue.NonZero() != 0 {
		return nil, f.consistencyFailure(cmd, fmt.Errorf("transfers leave %d non-zero balances", residue.NonZero()), logger,
			"balances", balances,
			"transfers", transfers)
	}

	logger.Debug("Computed settlement transfers",
		"participants", len(closing.ParticipantIDs),
		"expenses", len(expenses),
		"transfers", len(transfers))

	result, err := f.store.TryTransitionAndPersist(ctx, TransitionRequest{
		SettlementID:    cmd.SettlementID,
		ExpectedVersion: closing.Settlement.Version,
		Balances:        balances,
		Transfers:       transfers,
		ClosedAt:        f.now(),
		CorrelationID:   cmd.CorrelationID,
	})
	if err != nil {
		logger.Error("Failed to persist settlement close", "error", err)
		return nil, fmt.Errorf("persist close of settlement %s: %w", cmd.SettlementID, err)
	}

	if !result.Applied {
		return f.afterLostTransition(ctx, cmd, logger)
	}

	logger.Info("Settlement closed", "transfers", len(result.Snapshot.Transfers))
	return settlement.NewCloseOutcome(result.Snapshot, false), nil
}

// replay returns the snapshot written by an earlier close. A closed settlement
// without a snapshot cannot be replayed and surfaces as ErrSettlementClosed.
func (f *FinalizerImpl) replay(ctx context.Context, cmd CloseCommand, logger *slog.Logger) (*settlement.CloseOutcome, error) {
	snap, err := f.store.GetSnapshot(ctx, cmd.SettlementID)
	if err != nil {
		if errors.Is(err, settlement.ErrSnapshotNotFound{}) {
			logger.Warn("Closed settlement has no snapshot to replay")
			return nil, settlement.ErrSettlementClosed{SettlementID: cmd.SettlementID}
		}
		logger.Error("Failed to load snapshot for replay", "error", err)
		return nil, fmt.Errorf("load snapshot of settlement %s: %w", cmd.SettlementID, err)
	}
	return settlement.NewCloseOutcome(snap, true), nil
}

// afterLostTransition handles a compare-and-set that matched no row. A stored
// snapshot means another closer won. Without one the settlement moved past the
// validated version while still open, and the caller may retry.
func (f *FinalizerImpl) afterLostTransition(ctx context.Context, cmd CloseCommand, logger *slog.Logger) (*settlement.CloseOutcome, error) {
	snap, err := f.store.GetSnapshot(ctx, cmd.SettlementID)
	if err == nil {
		logger.Info("Concurrent close won the transition, replaying its snapshot")
		return settlement.NewCloseOutcome(snap, true), nil
	}
	if errors.Is(err, settlement.ErrSnapshotNotFound{}) {
		logger.Warn("Settlement changed after validation, close not applied")
		return nil, settlement.ErrConcurrentModification{SettlementID: cmd.SettlementID}
	}
	logger.Error("Failed to load snapshot after lost transition", "error", err)
	return nil, fmt.Errorf("load snapshot of settlement %s: %w", cmd.SettlementID, err)
}

func (f *FinalizerImpl) consistencyFailure(cmd CloseCommand, err error, logger *slog.Logger, attrs ...any) error {
	logger.Error("Settlement arithmetic failed", append([]any{"error", err}, attrs...)...)
	return settlement.ErrInternalConsistency{SettlementID: cmd.SettlementID, Err: err}
}

func (f *FinalizerImpl) observe(outcome *settlement.CloseOutcome, err error, elapsed time.Duration) {
	switch {
	case err == nil && outcome.Replayed:
		f.metrics.ObserveClose(metrics.OutcomeReplayed, len(outcome.Transfers), elapsed)
	case err == nil:
		f.metrics.ObserveClose(metrics.OutcomeClosed, len(outcome.Transfers), elapsed)
	case settlement.IsValidationError(err):
		f.metrics.ObserveClose(metrics.OutcomeValidationFailed, 0, elapsed)
	case errors.Is(err, settlement.ErrConcurrentModification{}):
		f.metrics.ObserveClose(metrics.OutcomeConflict, 0, elapsed)
	default:
		f.metrics.ObserveClose(metrics.OutcomeInternalError, 0, elapsed)
	}
}
