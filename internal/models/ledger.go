package models

import "time"

// Ledger is a scoped container of accounts, commodities and transactions.
// Sequence counts committed transactions and is bumped atomically with
// every append; cached balances are only valid for the sequence they were
// computed at. LockDate, when set, is the earliest permitted posting
// timestamp.
type Ledger struct {
	ID               string
	Name             string
	Description      string
	DefaultCommodity string
	LockDate         *time.Time
	Sequence         uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
