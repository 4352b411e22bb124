package store

import "time"

type Account struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

type LedgerEntry struct {
	ID        string
	UserID    string
	Type      string
	Amount    int64
	RefType   string
	RefID     string
	CreatedAt time.Time
}

type StateRecord struct {
	Name      string
	Data      []byte
	UpdatedAt time.Time
}
