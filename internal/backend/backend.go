// Package backend talks to the account service that holds users' currency.
package backend

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrInsufficientFunds = errors.New("backend: insufficient funds")
	ErrUnknownAccount    = errors.New("backend: unknown account")
)

// Service moves currency in and out of a user's account. Decrease and Increase
// return the balance after the change.
type Service interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Decrease(ctx context.Context, userID string, amount int64, ref string) (int64, error)
	Increase(ctx context.Context, userID string, amount int64, ref string) (int64, error)
}

// Account is one user's view of a Service. Failed calls are logged and
// reported as a zero-effect result; callers only book what was confirmed.
type Account struct {
	svc    Service
	userID string

	mu      sync.Mutex
	balance int64
}

func NewAccount(svc Service, userID string) *Account {
	return &Account{svc: svc, userID: userID}
}

func (a *Account) UserID() string { return a.userID }

// Balance is the last balance the service confirmed.
func (a *Account) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// SetBalance overrides the cached balance, used when restoring a snapshot.
func (a *Account) SetBalance(v int64) {
	a.mu.Lock()
	a.balance = v
	a.mu.Unlock()
}

// Refresh reloads the balance from the service. On failure the cached value is
// kept.
func (a *Account) Refresh(ctx context.Context) int64 {
	if a.svc == nil {
		return a.Balance()
	}
	bal, err := a.svc.Balance(ctx, a.userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", a.userID).Msg("account balance refresh failed")
		return a.Balance()
	}
	a.SetBalance(bal)
	return bal
}

// Decrease takes amount from the account and returns how much was actually
// taken: amount on success, zero on any failure.
func (a *Account) Decrease(ctx context.Context, amount int64, ref string) int64 {
	if amount <= 0 || a.svc == nil {
		return 0
	}
	bal, err := a.svc.Decrease(ctx, a.userID, amount, ref)
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, ErrInsufficientFunds) {
			ev = log.Debug()
		}
		ev.Err(err).Str("user_id", a.userID).Int64("amount", amount).Str("ref", ref).Msg("account decrease failed")
		return 0
	}
	a.SetBalance(bal)
	return amount
}

// Increase returns amount to the account and reports how much was booked.
func (a *Account) Increase(ctx context.Context, amount int64, ref string) int64 {
	if amount <= 0 || a.svc == nil {
		return 0
	}
	bal, err := a.svc.Increase(ctx, a.userID, amount, ref)
	if err != nil {
		log.Error().Err(err).Str("user_id", a.userID).Int64("amount", amount).Str("ref", ref).Msg("account increase failed")
		return 0
	}
	a.SetBalance(bal)
	return amount
}
