// Package events defines the payloads published after a transaction is
// durably committed. Publishing is best-effort and never rolls back the
// commit it announces.
package events

import "time"

const (
	TopicTransactionCommitted = "ledger.transaction.committed"
	TopicTransactionReversed  = "ledger.transaction.reversed"
)

// PostingEvent mirrors one posting of a committed transaction.
type PostingEvent struct {
	AccountID string `json:"account_id"`
	Commodity string `json:"commodity"`
	Amount    int64  `json:"amount"`
}

// TransactionCommitted announces a successfully committed transaction.
type TransactionCommitted struct {
	TransactionID string         `json:"transaction_id"`
	LedgerID      string         `json:"ledger_id"`
	Sequence      uint64         `json:"sequence"`
	Timestamp     time.Time      `json:"timestamp"`
	Description   string         `json:"description"`
	Postings      []PostingEvent `json:"postings"`
	CreatedBy     string         `json:"created_by"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// TransactionReversed announces that a reversing transaction was
// committed for a prior one.
type TransactionReversed struct {
	TransactionID string    `json:"transaction_id"`
	ReversalID    string    `json:"reversal_id"`
	LedgerID      string    `json:"ledger_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
