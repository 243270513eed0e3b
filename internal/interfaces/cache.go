package interfaces

import "context"

// CachedBalance is a materialized current balance together with the
// ledger sequence it was computed at. A cached value is only usable while
// the live sequence still matches; any later commit makes it stale.
type CachedBalance struct {
	Amount   int64  `json:"amount"`
	Sequence uint64 `json:"sequence"`
}

// BalanceCache is an optional, rebuildable materialized view of current
// balances keyed by (ledger, account, commodity). It is never a source of
// truth: a miss or an error simply falls back to recomputation from the
// committed history.
type BalanceCache interface {
	Get(ctx context.Context, ledgerID, accountID, commodity string) (CachedBalance, bool, error)
	Put(ctx context.Context, ledgerID, accountID, commodity string, balance CachedBalance) error
}
