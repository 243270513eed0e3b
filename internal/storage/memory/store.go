// Package memory is an in-memory implementation of the storage
// collaborator, used for tests and embedded development runs. It is safe
// for concurrent use and returns copies so callers cannot mutate internal
// state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
)

// Store keeps all records in maps guarded by one mutex. Appends are
// atomic by construction: the transaction, its postings, the sequence
// bump and the reversed-by mark happen under the same critical section.
type Store struct {
	mu           sync.Mutex
	ledgers      map[string]models.Ledger
	commodities  map[string]map[string]models.Commodity // ledger id -> code
	accounts     map[string]map[string]models.Account   // ledger id -> account id
	transactions map[string][]models.Transaction        // ledger id -> append order
	txIndex      map[string]txRef                       // transaction id -> location
}

type txRef struct {
	ledgerID string
	idx      int
}

var _ interfaces.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		ledgers:      make(map[string]models.Ledger),
		commodities:  make(map[string]map[string]models.Commodity),
		accounts:     make(map[string]map[string]models.Account),
		transactions: make(map[string][]models.Transaction),
		txIndex:      make(map[string]txRef),
	}
}

func (s *Store) CreateLedger(_ context.Context, ledger models.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledgers[ledger.ID] = ledger
	s.commodities[ledger.ID] = make(map[string]models.Commodity)
	s.accounts[ledger.ID] = make(map[string]models.Account)

	return nil
}

func (s *Store) GetLedger(_ context.Context, ledgerID string) (models.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLedgerLocked(ledgerID)
}

func (s *Store) getLedgerLocked(ledgerID string) (models.Ledger, error) {
	l, ok := s.ledgers[ledgerID]
	if !ok {
		return models.Ledger{}, models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	return l, nil
}

func (s *Store) UpdateLedger(_ context.Context, ledger models.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ledgers[ledger.ID]
	if !ok {
		return models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	// Sequence only moves through AppendTransaction.
	ledger.Sequence = existing.Sequence
	s.ledgers[ledger.ID] = ledger

	return nil
}

func (s *Store) SaveCommodity(_ context.Context, commodity models.Commodity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, ok := s.commodities[commodity.LedgerID]
	if !ok {
		return models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	registry[commodity.Code] = commodity

	return nil
}

func (s *Store) GetCommodity(_ context.Context, ledgerID, code string) (models.Commodity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commodities[ledgerID][code]
	if !ok {
		return models.Commodity{}, models.NewError(models.CodeUnknownCommodity, "commodity", "commodity "+code+" is not registered")
	}

	return c, nil
}

func (s *Store) ListCommodities(_ context.Context, ledgerID string) ([]models.Commodity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry := s.commodities[ledgerID]

	out := make([]models.Commodity, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	return out, nil
}

func (s *Store) CommodityInUse(_ context.Context, ledgerID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions[ledgerID] {
		for _, p := range tx.Postings {
			if p.Commodity == code {
				return true, nil
			}
		}
	}

	return false, nil
}

func (s *Store) SaveAccount(_ context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, ok := s.accounts[account.LedgerID]
	if !ok {
		return models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	accounts[account.ID] = account

	return nil
}

func (s *Store) UpdateAccount(_ context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.LedgerID][account.ID]; !ok {
		return models.NewError(models.CodeAccountNotFound, "account_id", "account not found")
	}

	s.accounts[account.LedgerID][account.ID] = account

	return nil
}

func (s *Store) GetAccount(_ context.Context, ledgerID, accountID string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[ledgerID][accountID]
	if !ok {
		return models.Account{}, models.NewError(models.CodeAccountNotFound, "account_id", "account not found in ledger")
	}

	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, ledgerID string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.accounts[ledgerID]

	out := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (s *Store) AccountHasPostings(_ context.Context, ledgerID, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions[ledgerID] {
		if tx.Touches(accountID) {
			return true, nil
		}
	}

	return false, nil
}

func (s *Store) AppendTransaction(_ context.Context, tx models.Transaction, reversedID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.getLedgerLocked(tx.LedgerID)
	if err != nil {
		return 0, err
	}

	if reversedID != "" {
		ref, ok := s.txIndex[reversedID]
		if !ok || ref.ledgerID != tx.LedgerID {
			return 0, models.NewError(models.CodeTransactionNotFound, "transaction_id", "reversed transaction not found")
		}

		if s.transactions[ref.ledgerID][ref.idx].ReversedBy != "" {
			return 0, models.NewError(models.CodeAlreadyReversed, "transaction_id", "transaction was already reversed")
		}

		s.transactions[ref.ledgerID][ref.idx].ReversedBy = tx.ID
	}

	tx.Postings = append([]models.Posting(nil), tx.Postings...)
	s.transactions[tx.LedgerID] = append(s.transactions[tx.LedgerID], tx)
	s.txIndex[tx.ID] = txRef{ledgerID: tx.LedgerID, idx: len(s.transactions[tx.LedgerID]) - 1}

	l.Sequence++
	s.ledgers[tx.LedgerID] = l

	return l.Sequence, nil
}

func (s *Store) GetTransaction(_ context.Context, ledgerID, transactionID string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.txIndex[transactionID]
	if !ok || ref.ledgerID != ledgerID {
		return models.Transaction{}, models.NewError(models.CodeTransactionNotFound, "transaction_id", "transaction not found")
	}

	return copyTransaction(s.transactions[ref.ledgerID][ref.idx]), nil
}

func (s *Store) ListTransactions(_ context.Context, ledgerID string, filter interfaces.TransactionFilter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Transaction

	// Descending walks the log backwards so the stable sort breaks
	// timestamp ties by descending append order, matching seq ordering.
	all := s.transactions[ledgerID]

	for i := range all {
		tx := all[i]
		if !filter.Ascending {
			tx = all[len(all)-1-i]
		}

		if filter.AccountID != "" && !tx.Touches(filter.AccountID) {
			continue
		}

		if filter.Sign != "" && !matchesSign(netAmount(tx, filter.AccountID), filter.Sign) {
			continue
		}

		if filter.After != nil && tx.Timestamp.Before(*filter.After) {
			continue
		}

		if filter.Before != nil && !tx.Timestamp.Before(*filter.Before) {
			continue
		}

		matched = append(matched, copyTransaction(tx))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.Ascending {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}

		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}

		matched = matched[filter.Offset:]
	}

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

func (s *Store) SumPostings(_ context.Context, ledgerID string, accountIDs []string, commodity string, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		members[id] = struct{}{}
	}

	var sum int64

	for _, tx := range s.transactions[ledgerID] {
		if tx.Timestamp.After(asOf) {
			continue
		}

		for _, p := range tx.Postings {
			if p.Commodity != commodity {
				continue
			}

			if _, ok := members[p.AccountID]; ok {
				sum += p.Amount
			}
		}
	}

	return sum, nil
}

func (s *Store) BalancesByCommodity(_ context.Context, ledgerID, accountID string, asOf time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[string]int64)

	for _, tx := range s.transactions[ledgerID] {
		if tx.Timestamp.After(asOf) {
			continue
		}

		for _, p := range tx.Postings {
			if p.AccountID == accountID {
				sums[p.Commodity] += p.Amount
			}
		}
	}

	return sums, nil
}

func (s *Store) LedgerSequence(_ context.Context, ledgerID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.getLedgerLocked(ledgerID)
	if err != nil {
		return 0, err
	}

	return l.Sequence, nil
}

// netAmount is the transaction's net effect on one account across all
// commodities.
func netAmount(tx models.Transaction, accountID string) int64 {
	var net int64

	for _, p := range tx.Postings {
		if p.AccountID == accountID {
			net += p.Amount
		}
	}

	return net
}

func matchesSign(net int64, sign string) bool {
	switch sign {
	case interfaces.SignCredit:
		return net > 0
	case interfaces.SignDebit:
		return net < 0
	case interfaces.SignZero:
		return net == 0
	}

	return true
}

func copyTransaction(tx models.Transaction) models.Transaction {
	tx.Postings = append([]models.Posting(nil), tx.Postings...)
	return tx
}
