package settlement

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a settlement. The only transition is open to closed.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Settlement is a group ledger that collects expenses until it is closed
type Settlement struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Version   int        `json:"version"` // For optimistic locking
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Settlement) IsOpen() bool {
	return s.Status == StatusOpen
}

// CanBeClosedBy reports whether userID owns the settlement
func (s *Settlement) CanBeClosedBy(userID string) bool {
	return userID != "" && s.OwnerID == userID
}

// CloseOutcome is the result of a close attempt. Replayed is set when the
// snapshot was produced by an earlier close rather than this call.
type CloseOutcome struct {
	SettlementID     uuid.UUID  `json:"settlement_id"`
	Status           Status     `json:"status"`
	ClosedAt         time.Time  `json:"closed_at"`
	Balances         BalanceMap `json:"balances"`
	Transfers        []Transfer `json:"transfers"`
	AlgorithmVersion string     `json:"algorithm_version"`
	Replayed         bool       `json:"replayed"`
}

// NewCloseOutcome builds an outcome from a stored snapshot
func NewCloseOutcome(snap *Snapshot, replayed bool) *CloseOutcome {
	return &CloseOutcome{
		SettlementID:     snap.SettlementID,
		Status:           StatusClosed,
		ClosedAt:         snap.CreatedAt,
		Balances:         snap.Balances,
		Transfers:        snap.Transfers,
		AlgorithmVersion: snap.AlgorithmVersion,
		Replayed:         replayed,
	}
}
