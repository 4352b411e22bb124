package backend

import (
	"context"
	"errors"
	"testing"

	"game-house/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountDecreaseConfirmsFullAmount(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory(1000)
	acc := NewAccount(svc, "u1")

	assert.Equal(t, int64(1000), acc.Refresh(ctx))
	assert.Equal(t, int64(400), acc.Decrease(ctx, 400, "r1"))
	assert.Equal(t, int64(600), acc.Balance())

	assert.Equal(t, int64(0), acc.Decrease(ctx, 601, "r1"))
	assert.Equal(t, int64(600), acc.Balance())

	assert.Equal(t, int64(400), acc.Increase(ctx, 400, "r1"))
	assert.Equal(t, int64(1000), acc.Balance())
}

func TestAccountDegradesToZeroOnFailure(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory(1000)
	acc := NewAccount(svc, "u1")
	acc.Refresh(ctx)

	svc.Fail(errors.New("backend down"))
	assert.Equal(t, int64(0), acc.Decrease(ctx, 100, "r1"))
	assert.Equal(t, int64(0), acc.Increase(ctx, 100, "r1"))
	assert.Equal(t, int64(1000), acc.Refresh(ctx))

	svc.Fail(nil)
	assert.Equal(t, int64(100), acc.Decrease(ctx, 100, "r1"))
}

func TestAccountWithoutServiceIsInert(t *testing.T) {
	acc := NewAccount(nil, "u1")
	assert.Equal(t, int64(0), acc.Decrease(context.Background(), 10, "r1"))
	assert.Equal(t, int64(0), acc.Refresh(context.Background()))
}

func TestLedgerService(t *testing.T) {
	st := testutil.OpenTestStore(t)
	ctx := context.Background()
	l := NewLedger(st, 500)

	bal, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)

	bal, err = l.Decrease(ctx, "u1", 200, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal)

	_, err = l.Decrease(ctx, "u1", 1000, "r1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = l.Increase(ctx, "nobody", 10, "r1")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}
