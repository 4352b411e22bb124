package store_test

import (
	"context"
	"testing"

	"game-house/internal/store"
	"game-house/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebitCreditWritesLedger(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureAccount(ctx, "u1", 1000))
	require.NoError(t, st.EnsureAccount(ctx, "u1", 5000))

	bal, err := st.Debit(ctx, "u1", 400, "game_commit", "room", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal)

	bal, err = st.Credit(ctx, "u1", 100, "game_refund", "room", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal)

	_, err = st.Debit(ctx, "u1", 701, "game_commit", "room", "r1")
	assert.ErrorIs(t, err, store.ErrInsufficientBalance)

	got, err := st.GetAccountBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), got)

	entries, err := st.ListLedgerEntries(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	assert.Equal(t, int64(-300), sum)
}

func TestBalanceOfUnknownAccount(t *testing.T) {
	st := testutil.OpenTestStore(t)

	_, err := st.GetAccountBalance(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
