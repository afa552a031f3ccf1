package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/persistence"
)

// ParticipantRepository reads settlement membership
type ParticipantRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewParticipantRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.ParticipantRepository {
	return &ParticipantRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// ListIDs returns the ids of the settlement's live participants in ascending order
func (r *ParticipantRepository) ListIDs(ctx context.Context, settlementID uuid.UUID) ([]settlement.ParticipantID, error) {
	query := `
		SELECT id::text
		FROM participants
		WHERE settlement_id = $1 AND deleted_at IS NULL
		ORDER BY id::text
	`

	rows, err := r.querier.Query(ctx, query, settlementID)
	if err != nil {
		r.logger.Error("Failed to list participant ids", "settlement_id", settlementID.String(), "error", err)
		return nil, fmt.Errorf("failed to list participant ids: %w", err)
	}
	defer rows.Close()

	ids := []settlement.ParticipantID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant id: %w", err)
		}
		ids = append(ids, settlement.ParticipantID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over participants: %w", err)
	}

	return ids, nil
}

// List returns the settlement's live participants with their nicknames
func (r *ParticipantRepository) List(ctx context.Context, settlementID uuid.UUID) ([]settlement.Participant, error) {
	query := `
		SELECT id::text, nickname, is_owner
		FROM participants
		WHERE settlement_id = $1 AND deleted_at IS NULL
		ORDER BY id::text
	`

	rows, err := r.querier.Query(ctx, query, settlementID)
	if err != nil {
		r.logger.Error("Failed to list participants", "settlement_id", settlementID.String(), "error", err)
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []settlement.Participant{}
	for rows.Next() {
		var (
			id string
			p  settlement.Participant
		)
		if err := rows.Scan(&id, &p.Nickname, &p.IsOwner); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.ID = settlement.ParticipantID(id)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over participants: %w", err)
	}

	return participants, nil
}
