package backend

import (
	"context"
	"sync"
)

// Memory is an in-process Service. Unknown users are opened with the initial
// balance on first use.
type Memory struct {
	initial int64

	mu       sync.Mutex
	balances map[string]int64
	failing  error
}

func NewMemory(initial int64) *Memory {
	return &Memory{initial: initial, balances: map[string]int64{}}
}

// Fail makes every following call return err; nil restores normal operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.failing = err
	m.mu.Unlock()
}

func (m *Memory) Set(userID string, balance int64) {
	m.mu.Lock()
	m.balances[userID] = balance
	m.mu.Unlock()
}

func (m *Memory) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return 0, m.failing
	}
	return m.balanceLocked(userID), nil
}

func (m *Memory) Decrease(_ context.Context, userID string, amount int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return 0, m.failing
	}
	bal := m.balanceLocked(userID)
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	bal -= amount
	m.balances[userID] = bal
	return bal, nil
}

func (m *Memory) Increase(_ context.Context, userID string, amount int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return 0, m.failing
	}
	bal := m.balanceLocked(userID) + amount
	m.balances[userID] = bal
	return bal, nil
}

func (m *Memory) balanceLocked(userID string) int64 {
	bal, ok := m.balances[userID]
	if !ok {
		bal = m.initial
		m.balances[userID] = bal
	}
	return bal
}
