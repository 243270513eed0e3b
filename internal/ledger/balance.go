package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
)

// BalanceAsOf returns the signed sum of postings to the account in the
// commodity across transactions with timestamp <= asOf. A commodity
// absent from the account's history yields zero: absence of activity is a
// valid state, not an error.
func (s *Service) BalanceAsOf(ctx context.Context, ledgerID, accountID, commodity string, asOf time.Time) (int64, error) {
	if _, err := s.store.GetAccount(ctx, ledgerID, accountID); err != nil {
		return 0, err
	}

	return s.store.SumPostings(ctx, ledgerID, []string{accountID}, commodity, asOf)
}

// CurrentBalance is BalanceAsOf at the current time. When a balance cache
// is configured it is consulted first; a cached value is only used if it
// was computed at the ledger's current commit sequence, which makes a hit
// provably equal to full recomputation.
func (s *Service) CurrentBalance(ctx context.Context, ledgerID, accountID, commodity string) (int64, error) {
	if s.cache == nil {
		return s.BalanceAsOf(ctx, ledgerID, accountID, commodity, s.clock.Now())
	}

	seq, err := s.store.LedgerSequence(ctx, ledgerID)
	if err != nil {
		return 0, err
	}

	cached, ok, err := s.cache.Get(ctx, ledgerID, accountID, commodity)
	if err != nil {
		s.logger.Warn("balance cache read failed", zap.Error(err))
	} else if ok && cached.Sequence == seq {
		return cached.Amount, nil
	}

	amount, err := s.BalanceAsOf(ctx, ledgerID, accountID, commodity, s.clock.Now())
	if err != nil {
		return 0, err
	}

	put := interfaces.CachedBalance{Amount: amount, Sequence: seq}
	if err := s.cache.Put(ctx, ledgerID, accountID, commodity, put); err != nil {
		s.logger.Warn("balance cache write failed", zap.Error(err))
	}

	return amount, nil
}

// SubtreeBalance sums the account and every descendant in the commodity
// as of the given time. Roles roll up hierarchically, so "Expenses.Food"
// contributes to "Expenses".
func (s *Service) SubtreeBalance(ctx context.Context, ledgerID, accountID, commodity string, asOf time.Time) (int64, error) {
	if _, err := s.store.GetAccount(ctx, ledgerID, accountID); err != nil {
		return 0, err
	}

	accounts, err := s.store.ListAccounts(ctx, ledgerID)
	if err != nil {
		return 0, err
	}

	children := childIndex(accounts)

	ids := []string{accountID}
	for i := 0; i < len(ids); i++ {
		for _, child := range children[ids[i]] {
			ids = append(ids, child.ID)
		}
	}

	return s.store.SumPostings(ctx, ledgerID, ids, commodity, asOf)
}

// AccountBalances returns the account's per-commodity sub-balances as of
// the given time. Multi-commodity accounts report one entry per commodity
// with activity.
func (s *Service) AccountBalances(ctx context.Context, ledgerID, accountID string, asOf time.Time) ([]models.Balance, error) {
	if _, err := s.store.GetAccount(ctx, ledgerID, accountID); err != nil {
		return nil, err
	}

	sums, err := s.store.BalancesByCommodity(ctx, ledgerID, accountID, asOf)
	if err != nil {
		return nil, err
	}

	commodities, err := s.store.ListCommodities(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	// Registry order keeps the result deterministic.
	balances := make([]models.Balance, 0, len(sums))

	for _, c := range commodities {
		amount, ok := sums[c.Code]
		if !ok {
			continue
		}

		balances = append(balances, models.Balance{
			AccountID: accountID,
			Commodity: c.Code,
			AsOf:      asOf,
			Amount:    amount,
		})
	}

	return balances, nil
}

// ListTransactions returns committed transactions of a ledger, optionally
// narrowed to one account, its net posting sign, and a time range, with
// pagination.
func (s *Service) ListTransactions(ctx context.Context, ledgerID string, filter interfaces.TransactionFilter) ([]models.Transaction, error) {
	if _, err := s.store.GetLedger(ctx, ledgerID); err != nil {
		return nil, err
	}

	if filter.Sign != "" {
		switch filter.Sign {
		case interfaces.SignCredit, interfaces.SignDebit, interfaces.SignZero:
		default:
			return nil, models.NewError(models.CodeInvalidInput, "sign", "sign must be one of +, -, =")
		}

		if filter.AccountID == "" {
			return nil, models.NewError(models.CodeInvalidInput, "sign", "sign filter requires an account filter")
		}
	}

	if filter.AccountID != "" {
		if _, err := s.store.GetAccount(ctx, ledgerID, filter.AccountID); err != nil {
			return nil, err
		}
	}

	return s.store.ListTransactions(ctx, ledgerID, filter)
}

// GetTransaction returns one committed transaction.
func (s *Service) GetTransaction(ctx context.Context, ledgerID, transactionID string) (models.Transaction, error) {
	return s.store.GetTransaction(ctx, ledgerID, transactionID)
}
