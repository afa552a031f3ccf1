// Package mongo keeps the document archive of published settlement snapshots.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/settlement-closer/internal/domain/settlement"
)

const (
	// SnapshotCollectionName is the name of the snapshot archive collection in MongoDB
	SnapshotCollectionName = "settlement_snapshots"
)

// SnapshotArchiveRepository implements settlement.SnapshotArchive for MongoDB
type SnapshotArchiveRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

func NewSnapshotArchiveRepository(logger *slog.Logger, db *mongo.Database) *SnapshotArchiveRepository {
	return &SnapshotArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique settlement_id index the upsert relies on
func (r *SnapshotArchiveRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(SnapshotCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "settlement_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_settlement_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create snapshot archive index: %w", err)
	}
	return nil
}

// Upsert writes the snapshot keyed by settlement id. Replaying the same snapshot
// leaves a single document, so redelivered outbox messages are harmless.
func (r *SnapshotArchiveRepository) Upsert(ctx context.Context, snap *settlement.Snapshot) error {
	collection := r.db.Collection(SnapshotCollectionName)

	filter := bson.M{"settlement_id": snap.SettlementID}
	_, err := collection.ReplaceOne(ctx, filter, snap, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to archive snapshot",
			"settlement_id", snap.SettlementID.String(),
			"error", err)
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}

	return nil
}

func (r *SnapshotArchiveRepository) GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*settlement.Snapshot, error) {
	collection := r.db.Collection(SnapshotCollectionName)

	var snap settlement.Snapshot
	err := collection.FindOne(ctx, bson.M{"settlement_id": settlementID}).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, settlement.ErrSnapshotNotFound{SettlementID: settlementID}
		}
		r.logger.Error("Failed to get archived snapshot",
			"settlement_id", settlementID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get archived snapshot: %w", err)
	}

	return &snap, nil
}
