package settlement

import (
	"time"

	"github.com/google/uuid"
)

// AlgorithmVersion tags snapshots with the transfer minimization strategy that produced them
const AlgorithmVersion = "greedy-maxheap-v1"

// Snapshot is the immutable record written when a settlement closes
type Snapshot struct {
	SettlementID     uuid.UUID  `json:"settlement_id" bson:"settlement_id"`
	AlgorithmVersion string     `json:"algorithm_version" bson:"algorithm_version"`
	Balances         BalanceMap `json:"balances" bson:"balances"`
	Transfers        []Transfer `json:"transfers" bson:"transfers"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
}

func NewSnapshot(settlementID uuid.UUID, balances BalanceMap, transfers []Transfer, at time.Time) *Snapshot {
	if transfers == nil {
		transfers = []Transfer{}
	}
	return &Snapshot{
		SettlementID:     settlementID,
		AlgorithmVersion: AlgorithmVersion,
		Balances:         balances,
		Transfers:        transfers,
		CreatedAt:        at,
	}
}
