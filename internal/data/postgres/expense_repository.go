package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/persistence"
)

// ExpenseRepository reads expenses together with their share sets
type ExpenseRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewExpenseRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.ExpenseRepository {
	return &ExpenseRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// ListBySettlement returns live expenses ordered by creation. An expense without
// share rows comes back with an empty share set so the calculator rejects it.
func (r *ExpenseRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]settlement.Expense, error) {
	query := `
		SELECT e.id, e.payer_participant_id::text, e.amount_cents, e.created_at,
			COALESCE(
				array_agg(s.participant_id::text ORDER BY s.participant_id::text)
					FILTER (WHERE s.participant_id IS NOT NULL),
				'{}'
			) AS share_ids
		FROM expenses e
		LEFT JOIN expense_shares s ON s.expense_id = e.id
		WHERE e.settlement_id = $1 AND e.deleted_at IS NULL
		GROUP BY e.id
		ORDER BY e.created_at, e.id
	`

	rows, err := r.querier.Query(ctx, query, settlementID)
	if err != nil {
		r.logger.Error("Failed to list expenses", "settlement_id", settlementID.String(), "error", err)
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []settlement.Expense{}
	for rows.Next() {
		var (
			exp      settlement.Expense
			payerID  string
			shareIDs []string
		)
		if err := rows.Scan(&exp.ID, &payerID, &exp.AmountCents, &exp.CreatedAt, &shareIDs); err != nil {
			r.logger.Error("Failed to scan expense", "settlement_id", settlementID.String(), "error", err)
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		exp.PayerID = settlement.ParticipantID(payerID)
		exp.ShareIDs = make([]settlement.ParticipantID, len(shareIDs))
		for i, id := range shareIDs {
			exp.ShareIDs[i] = settlement.ParticipantID(id)
		}
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over expenses: %w", err)
	}

	return expenses, nil
}
