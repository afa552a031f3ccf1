package calculator

import "github.com/settlement-closer/internal/domain/settlement"

type position struct {
	id     settlement.ParticipantID
	amount int64 // absolute remaining balance
}

// maxHeap orders positions by remaining amount, largest first, breaking ties by ascending id.
type maxHeap []position

func (h maxHeap) Len() int { return len(h) }

func (h maxHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return h[i].id < h[j].id
}

func (h maxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) { *h = append(*h, x.(position)) }

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}
