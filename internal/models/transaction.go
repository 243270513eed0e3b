package models

import "time"

// Posting is a single signed amount in one commodity applied to one
// account. Amount is in minor units, scale per the posting's commodity. A
// posting belongs to exactly one transaction and never exists
// independently.
type Posting struct {
	AccountID string
	Commodity string
	Amount    int64
	Memo      string
}

// Transaction is an atomic, balanced set of postings. Committed
// transactions are immutable; corrections are new reversing transactions,
// never mutation or deletion. Reverses and ReversedBy carry the
// back-references between a transaction and its reversal.
type Transaction struct {
	ID          string
	LedgerID    string
	Timestamp   time.Time
	Description string
	Postings    []Posting
	CreatedBy   string
	Reverses    string
	ReversedBy  string
	CreatedAt   time.Time
}

// Commodities returns the distinct commodity codes present among the
// transaction's postings, in first-seen order.
func (t Transaction) Commodities() []string {
	seen := make(map[string]struct{}, len(t.Postings))

	var codes []string

	for _, p := range t.Postings {
		if _, ok := seen[p.Commodity]; ok {
			continue
		}

		seen[p.Commodity] = struct{}{}
		codes = append(codes, p.Commodity)
	}

	return codes
}

// Touches reports whether any posting applies to the given account.
func (t Transaction) Touches(accountID string) bool {
	for _, p := range t.Postings {
		if p.AccountID == accountID {
			return true
		}
	}

	return false
}
