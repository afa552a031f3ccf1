package calculator

import (
	"container/heap"

	"github.com/settlement-closer/internal/domain/settlement"
)

// MinimizeTransfers greedily matches the largest creditor with the largest
// debtor until every balance is cleared. The output is deterministic for a
// given map, every amount is positive, and there are at most n-1 transfers
// where n is the number of non-zero balances.
func MinimizeTransfers(balances settlement.BalanceMap) ([]settlement.Transfer, error) {
	if sum := balances.Sum(); sum != 0 {
		return nil, settlement.ErrUnbalanced{Sum: sum}
	}

	creditors := &maxHeap{}
	debtors := &maxHeap{}
	for _, id := range balances.SortedIDs() {
		switch v := balances[id]; {
		case v > 0:
			*creditors = append(*creditors, position{id: id, amount: v})
		case v < 0:
			*debtors = append(*debtors, position{id: id, amount: -v})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	transfers := make([]settlement.Transfer, 0, max(creditors.Len()+debtors.Len()-1, 0))
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(creditors).(position)
		d := heap.Pop(debtors).(position)

		amount := min(c.amount, d.amount)
		transfers = append(transfers, settlement.Transfer{From: d.id, To: c.id, AmountCents: amount})

		c.amount -= amount
		d.amount -= amount
		if c.amount > 0 {
			heap.Push(creditors, c)
		}
		if d.amount > 0 {
			heap.Push(debtors, d)
		}
	}

	return transfers, nil
}
