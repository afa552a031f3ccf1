package calculator

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlement-closer/internal/domain/settlement"
)

func TestMinimizeTransfers_Scenarios(t *testing.T) {
	testCases := []struct {
		name     string
		balances settlement.BalanceMap
		expected []settlement.Transfer
	}{
		{
			name:     "FourParticipants",
			balances: settlement.BalanceMap{"A": 1500, "B": -1000, "C": 500, "D": -1000},
			expected: []settlement.Transfer{
				{From: "B", To: "A", AmountCents: 1000},
				{From: "D", To: "A", AmountCents: 500},
				{From: "D", To: "C", AmountCents: 500},
			},
		},
		{
			name:     "SinglePair",
			balances: settlement.BalanceMap{"A": 1000, "B": -1000},
			expected: []settlement.Transfer{{From: "B", To: "A", AmountCents: 1000}},
		},
		{
			name:     "ThreeWaySplitOf100",
			balances: settlement.BalanceMap{"a": 67, "b": -33, "c": -34},
			expected: []settlement.Transfer{
				{From: "c", To: "a", AmountCents: 34},
				{From: "b", To: "a", AmountCents: 33},
			},
		},
		{
			name:     "AllZero",
			balances: settlement.BalanceMap{"A": 0, "B": 0, "C": 0},
			expected: []settlement.Transfer{},
		},
		{
			name:     "Empty",
			balances: settlement.BalanceMap{},
			expected: []settlement.Transfer{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transfers, err := MinimizeTransfers(tc.balances)
			require.NoError(t, err)
			require.NotNil(t, transfers)
			assert.Equal(t, tc.expected, transfers)
		})
	}
}

func TestMinimizeTransfers_UnbalancedInput(t *testing.T) {
	_, err := MinimizeTransfers(settlement.BalanceMap{"A": 10, "B": -9})

	require.Error(t, err)
	assert.True(t, errors.Is(err, settlement.ErrUnbalanced{}))
}

func TestMinimizeTransfers_DoesNotMutateInput(t *testing.T) {
	balances := settlement.BalanceMap{"A": 1500, "B": -1000, "C": 500, "D": -1000}
	before := balances.Clone()

	_, err := MinimizeTransfers(balances)
	require.NoError(t, err)
	assert.Equal(t, before, balances)
}

// randomExpenses builds a reproducible settlement with n participants.
func randomExpenses(r *rand.Rand, n, count int) ([]settlement.ParticipantID, []settlement.Expense) {
	participants := make([]settlement.ParticipantID, n)
	for i := range participants {
		participants[i] = settlement.ParticipantID(fmt.Sprintf("p%03d", i))
	}

	expenses := make([]settlement.Expense, count)
	for i := range expenses {
		sharers := r.Perm(n)[:1+r.Intn(n)]
		shareIDs := make([]settlement.ParticipantID, len(sharers))
		for j, idx := range sharers {
			shareIDs[j] = participants[idx]
		}
		expenses[i] = settlement.Expense{
			PayerID:     participants[r.Intn(n)],
			AmountCents: 1 + r.Int63n(100000),
			ShareIDs:    shareIDs,
		}
	}
	return participants, expenses
}

func TestCloseComputation_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		participants, expenses := randomExpenses(r, 2+r.Intn(12), r.Intn(30))

		balances, err := AggregateBalances(participants, expenses)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balances.Sum(), "balances must sum to zero")
		assert.Len(t, balances, len(participants))

		transfers, err := MinimizeTransfers(balances)
		require.NoError(t, err)

		for _, tr := range transfers {
			assert.Positive(t, tr.AmountCents)
			assert.NotEqual(t, tr.From, tr.To)
		}

		if nonZero := balances.NonZero(); nonZero > 0 {
			assert.LessOrEqual(t, len(transfers), nonZero-1)
		} else {
			assert.Empty(t, transfers)
		}

		for id, v := range balances.Apply(transfers) {
			assert.Zero(t, v, "participant %s not settled", id)
		}

		again, err := MinimizeTransfers(balances.Clone())
		require.NoError(t, err)
		assert.Equal(t, transfers, again, "output must be deterministic")
	}
}

func BenchmarkMinimizeTransfers(b *testing.B) {
	r := rand.New(rand.NewSource(7))
	participants, expenses := randomExpenses(r, 200, 2000)
	balances, err := AggregateBalances(participants, expenses)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := MinimizeTransfers(balances); err != nil {
			b.Fatal(err)
		}
	}
}
