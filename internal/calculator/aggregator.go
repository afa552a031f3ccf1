package calculator

import (
	"github.com/settlement-closer/internal/domain/settlement"
)

// SplitShares divides amount across the distinct share ids. Every sharer gets the
// floor of amount/n and the lexicographically last id absorbs the remainder, so
// the shares always add up to amount.
func SplitShares(amount int64, shareIDs []settlement.ParticipantID) (map[settlement.ParticipantID]int64, error) {
	if amount <= 0 {
		return nil, settlement.ErrInvalidExpense{Reason: "amount must be positive"}
	}
	ids := distinctSorted(shareIDs)
	if len(ids) == 0 {
		return nil, settlement.ErrInvalidExpense{Reason: "share set is empty"}
	}

	n := int64(len(ids))
	perShare := amount / n
	shares := make(map[settlement.ParticipantID]int64, len(ids))
	for _, id := range ids {
		shares[id] = perShare
	}
	shares[ids[len(ids)-1]] += amount - perShare*n

	return shares, nil
}

// AggregateBalances computes every participant's net balance: the payer is
// credited the full amount and each sharer is debited their share. The result
// has an entry for every participant, including those with a zero balance.
func AggregateBalances(participantIDs []settlement.ParticipantID, expenses []settlement.Expense) (settlement.BalanceMap, error) {
	balances := make(settlement.BalanceMap, len(participantIDs))
	for _, id := range participantIDs {
		balances[id] = 0
	}

	for _, exp := range expenses {
		if _, ok := balances[exp.PayerID]; !ok {
			return nil, settlement.ErrUnknownParticipant{ParticipantID: exp.PayerID}
		}

		shares, err := SplitShares(exp.AmountCents, exp.ShareIDs)
		if err != nil {
			if invalid, ok := err.(settlement.ErrInvalidExpense); ok {
				invalid.ExpenseID = exp.ID
				return nil, invalid
			}
			return nil, err
		}
		for id := range shares {
			if _, ok := balances[id]; !ok {
				return nil, settlement.ErrUnknownParticipant{ParticipantID: id}
			}
		}

		balances[exp.PayerID] += exp.AmountCents
		for id, share := range shares {
			balances[id] -= share
		}
	}

	if sum := balances.Sum(); sum != 0 {
		return nil, settlement.ErrUnbalanced{Sum: sum}
	}

	return balances, nil
}

func distinctSorted(ids []settlement.ParticipantID) []settlement.ParticipantID {
	seen := make(map[settlement.ParticipantID]struct{}, len(ids))
	out := make([]settlement.ParticipantID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	settlement.SortIDs(out)
	return out
}
