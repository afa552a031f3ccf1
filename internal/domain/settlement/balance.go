package settlement

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ParticipantID identifies a member of a settlement. Ordering is byte-wise lexicographic.
type ParticipantID string

// Participant is a member of a settlement
type Participant struct {
	ID       ParticipantID `json:"id"`
	Nickname string        `json:"nickname"`
	IsOwner  bool          `json:"is_owner"`
}

// Expense is a single payment made by one participant on behalf of one or more sharers
type Expense struct {
	ID          uuid.UUID       `json:"id"`
	PayerID     ParticipantID   `json:"payer_id"`
	AmountCents int64           `json:"amount_cents"` // Stored in cents/minor units
	ShareIDs    []ParticipantID `json:"share_ids"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BalanceMap holds each participant's signed net balance in cents.
// Positive means the participant is owed money, negative means they owe.
type BalanceMap map[ParticipantID]int64

// Sum returns the total of all balances; a consistent map sums to zero
func (b BalanceMap) Sum() int64 {
	var total int64
	for _, v := range b {
		total += v
	}
	return total
}

// SortedIDs returns the participant ids in ascending order
func (b BalanceMap) SortedIDs() []ParticipantID {
	ids := make([]ParticipantID, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// NonZero counts participants whose balance is not zero
func (b BalanceMap) NonZero() int {
	n := 0
	for _, v := range b {
		if v != 0 {
			n++
		}
	}
	return n
}

func (b BalanceMap) Clone() BalanceMap {
	out := make(BalanceMap, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Apply replays transfers on a copy of the map. The debtor's balance rises by the
// amount paid and the creditor's falls by the amount received.
func (b BalanceMap) Apply(transfers []Transfer) BalanceMap {
	out := b.Clone()
	for _, t := range transfers {
		out[t.From] += t.AmountCents
		out[t.To] -= t.AmountCents
	}
	return out
}

// Transfer is a single payment from a debtor to a creditor
type Transfer struct {
	From        ParticipantID `json:"from" bson:"from"`
	To          ParticipantID `json:"to" bson:"to"`
	AmountCents int64         `json:"amount_cents" bson:"amount_cents"`
}

// SortIDs sorts participant ids in place
func SortIDs(ids []ParticipantID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
