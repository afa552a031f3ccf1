package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
)

// BalanceResponse is one participant's net position. Positive means the
// participant is owed money.
type BalanceResponse struct {
	ParticipantID string `json:"participant_id"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount"`
}

// TransferResponse is one payment required to settle up
type TransferResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

// CloseResponse represents the result of a close call
type CloseResponse struct {
	SettlementID     string             `json:"settlement_id"`
	Status           string             `json:"status"`
	ClosedAt         string             `json:"closed_at"`
	AlgorithmVersion string             `json:"algorithm_version"`
	Replayed         bool               `json:"replayed"`
	Balances         []BalanceResponse  `json:"balances"`
	Transfers        []TransferResponse `json:"transfers"`
}

// SnapshotResponse represents a stored snapshot
type SnapshotResponse struct {
	SettlementID     string             `json:"settlement_id"`
	AlgorithmVersion string             `json:"algorithm_version"`
	CreatedAt        string             `json:"created_at"`
	Balances         []BalanceResponse  `json:"balances"`
	Transfers        []TransferResponse `json:"transfers"`
}

// CloseRequestResponse acknowledges an asynchronous close request
type CloseRequestResponse struct {
	RequestID     string `json:"request_id"`
	SettlementID  string `json:"settlement_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RequestedAt   string `json:"requested_at"`
}

const closeRequestPending = "PENDING"

func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func mapBalances(balances settlement.BalanceMap) []BalanceResponse {
	out := make([]BalanceResponse, 0, len(balances))
	for _, id := range balances.SortedIDs() {
		out = append(out, BalanceResponse{
			ParticipantID: string(id),
			AmountCents:   balances[id],
			Amount:        formatCents(balances[id]),
		})
	}
	return out
}

func mapTransfers(transfers []settlement.Transfer) []TransferResponse {
	out := make([]TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, TransferResponse{
			From:        string(t.From),
			To:          string(t.To),
			AmountCents: t.AmountCents,
			Amount:      formatCents(t.AmountCents),
		})
	}
	return out
}

func mapOutcomeToResponse(outcome *settlement.CloseOutcome) CloseResponse {
	return CloseResponse{
		SettlementID:     outcome.SettlementID.String(),
		Status:           string(outcome.Status),
		ClosedAt:         outcome.ClosedAt.UTC().Format(time.RFC3339),
		AlgorithmVersion: outcome.AlgorithmVersion,
		Replayed:         outcome.Replayed,
		Balances:         mapBalances(outcome.Balances),
		Transfers:        mapTransfers(outcome.Transfers),
	}
}

func mapSnapshotToResponse(snap *settlement.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		SettlementID:     snap.SettlementID.String(),
		AlgorithmVersion: snap.AlgorithmVersion,
		CreatedAt:        snap.CreatedAt.UTC().Format(time.RFC3339),
		Balances:         mapBalances(snap.Balances),
		Transfers:        mapTransfers(snap.Transfers),
	}
}

func mapCloseRequestToResponse(req *shared.CloseRequest) CloseRequestResponse {
	return CloseRequestResponse{
		RequestID:     req.RequestID.String(),
		SettlementID:  req.SettlementID.String(),
		Status:        closeRequestPending,
		CorrelationID: req.CorrelationID,
		RequestedAt:   req.Timestamp.UTC().Format(time.RFC3339),
	}
}
