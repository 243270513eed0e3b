package interfaces

import (
	"context"
	"time"

	"github.com/finbooks/ledger/internal/models"
)

// Sign values for TransactionFilter.
const (
	SignCredit = "+"
	SignDebit  = "-"
	SignZero   = "="
)

// TransactionFilter narrows ListTransactions results. After is inclusive,
// Before exclusive. A zero Limit means no limit. Sign, when set, keeps
// only transactions whose net effect on AccountID is positive (+),
// negative (-) or zero (=); it requires AccountID.
type TransactionFilter struct {
	AccountID string
	Sign      string
	After     *time.Time
	Before    *time.Time
	Limit     int
	Offset    int
	Ascending bool
}

// Store is the durable storage collaborator. Implementations must make
// AppendTransaction atomic per ledger: the transaction record, its
// postings, the ledger sequence bump and the reversed-by back-reference
// become visible together or not at all. Reads reflect only committed
// transactions as of invocation.
type Store interface {
	CreateLedger(ctx context.Context, ledger models.Ledger) error
	GetLedger(ctx context.Context, ledgerID string) (models.Ledger, error)
	UpdateLedger(ctx context.Context, ledger models.Ledger) error

	SaveCommodity(ctx context.Context, commodity models.Commodity) error
	GetCommodity(ctx context.Context, ledgerID, code string) (models.Commodity, error)
	ListCommodities(ctx context.Context, ledgerID string) ([]models.Commodity, error)
	// CommodityInUse reports whether any posting in the ledger references
	// the commodity code.
	CommodityInUse(ctx context.Context, ledgerID, code string) (bool, error)

	SaveAccount(ctx context.Context, account models.Account) error
	UpdateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, ledgerID, accountID string) (models.Account, error)
	ListAccounts(ctx context.Context, ledgerID string) ([]models.Account, error)
	AccountHasPostings(ctx context.Context, ledgerID, accountID string) (bool, error)

	// AppendTransaction durably appends tx as an immutable unit and bumps
	// the ledger sequence, returning the new sequence. When reversedID is
	// non-empty the referenced transaction's ReversedBy is set within the
	// same atomic unit. A concurrent conflicting append surfaces as a
	// WRITE_CONFLICT domain error.
	AppendTransaction(ctx context.Context, tx models.Transaction, reversedID string) (uint64, error)
	GetTransaction(ctx context.Context, ledgerID, transactionID string) (models.Transaction, error)
	ListTransactions(ctx context.Context, ledgerID string, filter TransactionFilter) ([]models.Transaction, error)

	// SumPostings returns the signed sum of postings in the commodity
	// across the given accounts, counting transactions with timestamp <=
	// asOf. Absence of activity sums to zero.
	SumPostings(ctx context.Context, ledgerID string, accountIDs []string, commodity string, asOf time.Time) (int64, error)
	// BalancesByCommodity returns the per-commodity sums for one account,
	// counting transactions with timestamp <= asOf.
	BalancesByCommodity(ctx context.Context, ledgerID, accountID string, asOf time.Time) (map[string]int64, error)
	LedgerSequence(ctx context.Context, ledgerID string) (uint64, error)
}
