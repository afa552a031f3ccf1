package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlement-closer/internal/domain/settlement"
)

func TestParticipantRepository_ListIDs(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ParticipantRepository{querier: mock, logger: newTestLogger()}
	settlementID := uuid.New()
	query := `SELECT id::text\s+FROM participants\s+WHERE settlement_id = \$1 AND deleted_at IS NULL`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b").AddRow("c")
		mock.ExpectQuery(query).WithArgs(settlementID).WillReturnRows(rows)

		ids, err := repo.ListIDs(ctx, settlementID)
		require.NoError(t, err)
		assert.Equal(t, []settlement.ParticipantID{"a", "b", "c"}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(settlementID).WillReturnRows(pgxmock.NewRows([]string{"id"}))

		ids, err := repo.ListIDs(ctx, settlementID)
		require.NoError(t, err)
		assert.NotNil(t, ids)
		assert.Empty(t, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("timeout")
		mock.ExpectQuery(query).WithArgs(settlementID).WillReturnError(dbErr)

		ids, err := repo.ListIDs(ctx, settlementID)
		assert.Nil(t, ids)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestParticipantRepository_List(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ParticipantRepository{querier: mock, logger: newTestLogger()}
	settlementID := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "nickname", "is_owner"}).
		AddRow("a", "alice", true).
		AddRow("b", "bob", false)
	mock.ExpectQuery(`SELECT id::text, nickname, is_owner`).WithArgs(settlementID).WillReturnRows(rows)

	participants, err := repo.List(ctx, settlementID)
	require.NoError(t, err)
	assert.Equal(t, []settlement.Participant{
		{ID: "a", Nickname: "alice", IsOwner: true},
		{ID: "b", Nickname: "bob", IsOwner: false},
	}, participants)
	assert.NoError(t, mock.ExpectationsWereMet())
}
