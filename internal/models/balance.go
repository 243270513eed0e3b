package models

import "time"

// Balance is a derived snapshot: the signed sum of postings to one
// account in one commodity up to AsOf. It is never authoritative and is
// always reconstructable from the committed transaction history.
type Balance struct {
	AccountID string
	Commodity string
	AsOf      time.Time
	Amount    int64
}
