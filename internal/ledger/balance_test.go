package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/finbooks/ledger/internal/cache/memory"
	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
)

func TestBalanceAsOfCutsByTimestamp(t *testing.T) {
	f := newFixture(t)
	cash := f.account(t, "", "Cash", models.RoleAsset, "USD")
	salary := f.account(t, "", "Salary", models.RoleIncome, "USD")

	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
	}

	for _, c := range []struct {
		ts     time.Time
		amount int64
	}{
		{day(1), 1000},
		{day(10), 2000},
		{day(20), 4000},
	} {
		_, err := f.svc.Commit(context.Background(), f.ledger.ID, "income", c.ts, []PostingInput{
			{AccountID: cash.ID, Commodity: "USD", Amount: c.amount},
			{AccountID: salary.ID, Commodity: "USD", Amount: -c.amount},
		})
		require.NoError(t, err)
	}

	balance, err := f.svc.BalanceAsOf(context.Background(), f.ledger.ID, cash.ID, "USD", day(15))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance)

	// The cutoff is inclusive.
	balance, err = f.svc.BalanceAsOf(context.Background(), f.ledger.ID, cash.ID, "USD", day(10))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance)

	balance, err = f.svc.BalanceAsOf(context.Background(), f.ledger.ID, cash.ID, "USD", day(25))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balance)
}

func TestBalanceAbsentCommodityIsZero(t *testing.T) {
	f := newFixture(t)
	cash := f.account(t, "", "Cash", models.RoleAsset, models.CommodityMulti)

	balance, err := f.svc.CurrentBalance(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestBalanceUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CurrentBalance(context.Background(), f.ledger.ID, "no-such-account", "USD")
	assert.True(t, models.IsCode(err, models.CodeAccountNotFound))
}

func TestCurrentBalanceCacheTracksCommits(t *testing.T) {
	cache := cachemem.NewCache()
	f := newFixture(t, WithCache(cache))
	cash := f.account(t, "", "Cash", models.RoleAsset, "USD")
	salary := f.account(t, "", "Salary", models.RoleIncome, "USD")

	postings := []PostingInput{
		{AccountID: cash.ID, Commodity: "USD", Amount: 100},
		{AccountID: salary.ID, Commodity: "USD", Amount: -100},
	}

	f.commit(t, postings...)

	balance, err := f.svc.CurrentBalance(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	cached, ok, err := cache.Get(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, interfaces.CachedBalance{Amount: 100, Sequence: 1}, cached)

	// A new commit bumps the ledger sequence, so the stale entry is
	// recomputed rather than served.
	f.commit(t, postings...)

	balance, err = f.svc.CurrentBalance(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)

	cached, ok, err = cache.Get(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), cached.Sequence)
}

func TestCurrentBalanceIgnoresPoisonedCache(t *testing.T) {
	cache := cachemem.NewCache()
	f := newFixture(t, WithCache(cache))
	cash := f.account(t, "", "Cash", models.RoleAsset, "USD")
	salary := f.account(t, "", "Salary", models.RoleIncome, "USD")

	f.commit(t,
		PostingInput{AccountID: cash.ID, Commodity: "USD", Amount: 100},
		PostingInput{AccountID: salary.ID, Commodity: "USD", Amount: -100},
	)

	// An entry stamped with a stale sequence must never be returned.
	err := cache.Put(context.Background(), f.ledger.ID, cash.ID, "USD", interfaces.CachedBalance{Amount: 999999, Sequence: 0})
	require.NoError(t, err)

	balance, err := f.svc.CurrentBalance(context.Background(), f.ledger.ID, cash.ID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestSubtreeBalanceRollsUpDescendants(t *testing.T) {
	f := newFixture(t)
	expenses := f.account(t, "", "Expenses", models.RoleExpense, "USD")
	food := f.account(t, expenses.ID, "Food", models.RoleExpense, "USD")
	groceries := f.account(t, food.ID, "Groceries", models.RoleExpense, "USD")
	rent := f.account(t, expenses.ID, "Rent", models.RoleExpense, "USD")
	cash := f.account(t, "", "Cash", models.RoleAsset, "USD")

	for _, c := range []struct {
		account models.Account
		amount  int64
	}{
		{food, 1000},
		{groceries, 2500},
		{rent, 80000},
	} {
		f.commit(t,
			PostingInput{AccountID: c.account.ID, Commodity: "USD", Amount: c.amount},
			PostingInput{AccountID: cash.ID, Commodity: "USD", Amount: -c.amount},
		)
	}

	subtree, err := f.svc.SubtreeBalance(context.Background(), f.ledger.ID, expenses.ID, "USD", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(83500), subtree)

	foodSubtree, err := f.svc.SubtreeBalance(context.Background(), f.ledger.ID, food.ID, "USD", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3500), foodSubtree)

	// An account with no postings of its own still rolls up nothing.
	own, err := f.svc.BalanceAsOf(context.Background(), f.ledger.ID, expenses.ID, "USD", time.Now())
	require.NoError(t, err)
	assert.Zero(t, own)
}

func TestAccountBalancesPerCommodity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterCommodity(context.Background(), f.ledger.ID, "EUR", "Euro", "€", 2)
	require.NoError(t, err)
	_, err = f.svc.RegisterCommodity(context.Background(), f.ledger.ID, "JPY", "Japanese Yen", "¥", 0)
	require.NoError(t, err)

	wallet := f.account(t, "", "Wallet", models.RoleAsset, models.CommodityMulti)
	equity := f.account(t, "", "Opening", models.RoleEquity, models.CommodityMulti)

	f.commit(t,
		PostingInput{AccountID: wallet.ID, Commodity: "USD", Amount: 1000},
		PostingInput{AccountID: equity.ID, Commodity: "USD", Amount: -1000},
		PostingInput{AccountID: wallet.ID, Commodity: "EUR", Amount: 2000},
		PostingInput{AccountID: equity.ID, Commodity: "EUR", Amount: -2000},
	)

	balances, err := f.svc.AccountBalances(context.Background(), f.ledger.ID, wallet.ID, time.Now())
	require.NoError(t, err)

	// One entry per commodity with activity, in registry order; JPY has
	// no postings and is absent.
	require.Len(t, balances, 2)
	assert.Equal(t, "EUR", balances[0].Commodity)
	assert.Equal(t, int64(2000), balances[0].Amount)
	assert.Equal(t, "USD", balances[1].Commodity)
	assert.Equal(t, int64(1000), balances[1].Amount)
}

func TestProjectorAgreesWithBruteForce(t *testing.T) {
	f := newFixture(t)
	accounts := []models.Account{
		f.account(t, "", "Cash", models.RoleAsset, "USD"),
		f.account(t, "", "Salary", models.RoleIncome, "USD"),
		f.account(t, "", "Rent", models.RoleExpense, "USD"),
	}

	// Deterministic pseudo-random balanced transfers between account
	// pairs; the projector must agree with a naive sum over the postings
	// it committed.
	expected := make(map[string]int64)
	seed := int64(7)

	for i := 0; i < 50; i++ {
		seed = (seed*1103515245 + 12345) % (1 << 31)
		from := accounts[seed%3]
		to := accounts[(seed+1)%3]
		amount := seed%9000 + 1

		f.commit(t,
			PostingInput{AccountID: to.ID, Commodity: "USD", Amount: amount},
			PostingInput{AccountID: from.ID, Commodity: "USD", Amount: -amount},
		)

		expected[to.ID] += amount
		expected[from.ID] -= amount
	}

	var total int64

	for _, a := range accounts {
		balance, err := f.svc.CurrentBalance(context.Background(), f.ledger.ID, a.ID, "USD")
		require.NoError(t, err)
		assert.Equal(t, expected[a.ID], balance)

		total += balance
	}

	// Every transaction was zero-sum, so the whole ledger is.
	assert.Zero(t, total)
}

func TestListTransactionsFiltering(t *testing.T) {
	f := newFixture(t)
	cash := f.account(t, "", "Cash", models.RoleAsset, "USD")
	salary := f.account(t, "", "Salary", models.RoleIncome, "USD")
	rent := f.account(t, "", "Rent", models.RoleExpense, "USD")

	day := func(d int) time.Time {
		return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
	}

	_, err := f.svc.Commit(context.Background(), f.ledger.ID, "salary", day(1), []PostingInput{
		{AccountID: cash.ID, Commodity: "USD", Amount: 100000},
		{AccountID: salary.ID, Commodity: "USD", Amount: -100000},
	})
	require.NoError(t, err)

	_, err = f.svc.Commit(context.Background(), f.ledger.ID, "rent", day(5), []PostingInput{
		{AccountID: rent.ID, Commodity: "USD", Amount: 80000},
		{AccountID: cash.ID, Commodity: "USD", Amount: -80000},
	})
	require.NoError(t, err)

	_, err = f.svc.Commit(context.Background(), f.ledger.ID, "bonus", day(10), []PostingInput{
		{AccountID: cash.ID, Commodity: "USD", Amount: 5000},
		{AccountID: salary.ID, Commodity: "USD", Amount: -5000},
	})
	require.NoError(t, err)

	all, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{Ascending: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "salary", all[0].Description)
	assert.Equal(t, "bonus", all[2].Description)

	// Default order is newest first.
	desc, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, "bonus", desc[0].Description)

	bySalary, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{AccountID: salary.ID})
	require.NoError(t, err)
	assert.Len(t, bySalary, 2)

	after := day(5)
	before := day(10)
	windowed, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{After: &after, Before: &before})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "rent", windowed[0].Description)

	paged, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{Ascending: true, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "rent", paged[0].Description)

	_, err = f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{AccountID: "no-such-account"})
	assert.True(t, models.IsCode(err, models.CodeAccountNotFound))

	// Sign narrows to the net effect on the filtered account.
	credits, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{AccountID: cash.ID, Sign: interfaces.SignCredit, Ascending: true})
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.Equal(t, "salary", credits[0].Description)
	assert.Equal(t, "bonus", credits[1].Description)

	debits, err := f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{AccountID: cash.ID, Sign: interfaces.SignDebit})
	require.NoError(t, err)
	require.Len(t, debits, 1)
	assert.Equal(t, "rent", debits[0].Description)

	_, err = f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{AccountID: cash.ID, Sign: "?"})
	assert.True(t, models.IsCode(err, models.CodeInvalidInput))

	_, err = f.svc.ListTransactions(context.Background(), f.ledger.ID, interfaces.TransactionFilter{Sign: interfaces.SignCredit})
	assert.True(t, models.IsCode(err, models.CodeInvalidInput))
}
