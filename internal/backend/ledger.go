package backend

import (
	"context"
	"errors"

	"game-house/internal/store"
)

// Ledger is the Postgres-backed Service. Every change is written with a
// ledger entry referencing the room that caused it.
type Ledger struct {
	Store   *store.Store
	Initial int64
}

func NewLedger(s *store.Store, initial int64) *Ledger {
	return &Ledger{Store: s, Initial: initial}
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	if err := l.Store.EnsureAccount(ctx, userID, l.Initial); err != nil {
		return 0, err
	}
	return l.Store.GetAccountBalance(ctx, userID)
}

func (l *Ledger) Decrease(ctx context.Context, userID string, amount int64, ref string) (int64, error) {
	if err := l.Store.EnsureAccount(ctx, userID, l.Initial); err != nil {
		return 0, err
	}
	bal, err := l.Store.Debit(ctx, userID, amount, "game_commit", "room", ref)
	return bal, mapLedgerErr(err)
}

func (l *Ledger) Increase(ctx context.Context, userID string, amount int64, ref string) (int64, error) {
	bal, err := l.Store.Credit(ctx, userID, amount, "game_refund", "room", ref)
	return bal, mapLedgerErr(err)
}

func mapLedgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInsufficientBalance):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return ErrUnknownAccount
	default:
		return err
	}
}
