package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
)

func seedLedger(t *testing.T, s *Store, id string) {
	t.Helper()

	require.NoError(t, s.CreateLedger(context.Background(), models.Ledger{ID: id, Name: id, DefaultCommodity: "USD"}))
}

func appendTx(t *testing.T, s *Store, ledgerID, txID string, ts time.Time, postings ...models.Posting) uint64 {
	t.Helper()

	seq, err := s.AppendTransaction(context.Background(), models.Transaction{
		ID:        txID,
		LedgerID:  ledgerID,
		Timestamp: ts,
		Postings:  postings,
	}, "")
	require.NoError(t, err)

	return seq
}

func TestAppendTransactionBumpsSequence(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	ts := time.Now()
	assert.Equal(t, uint64(1), appendTx(t, s, "l1", "t1", ts, models.Posting{AccountID: "a", Commodity: "USD", Amount: 1}))
	assert.Equal(t, uint64(2), appendTx(t, s, "l1", "t2", ts, models.Posting{AccountID: "a", Commodity: "USD", Amount: -1}))

	seq, err := s.LedgerSequence(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestUpdateLedgerPreservesSequence(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")
	appendTx(t, s, "l1", "t1", time.Now())

	l, err := s.GetLedger(context.Background(), "l1")
	require.NoError(t, err)

	l.Description = "renamed"
	l.Sequence = 999
	require.NoError(t, s.UpdateLedger(context.Background(), l))

	seq, err := s.LedgerSequence(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestAppendReversalMarksOriginal(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")
	appendTx(t, s, "l1", "t1", time.Now())

	_, err := s.AppendTransaction(context.Background(), models.Transaction{ID: "r1", LedgerID: "l1", Reverses: "t1"}, "t1")
	require.NoError(t, err)

	original, err := s.GetTransaction(context.Background(), "l1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "r1", original.ReversedBy)

	_, err = s.AppendTransaction(context.Background(), models.Transaction{ID: "r2", LedgerID: "l1", Reverses: "t1"}, "t1")
	assert.True(t, models.IsCode(err, models.CodeAlreadyReversed))

	_, err = s.AppendTransaction(context.Background(), models.Transaction{ID: "r3", LedgerID: "l1", Reverses: "ghost"}, "ghost")
	assert.True(t, models.IsCode(err, models.CodeTransactionNotFound))
}

func TestGetTransactionScopedToLedger(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")
	seedLedger(t, s, "l2")
	appendTx(t, s, "l1", "t1", time.Now())

	_, err := s.GetTransaction(context.Background(), "l2", "t1")
	assert.True(t, models.IsCode(err, models.CodeTransactionNotFound))

	// A reversal in another ledger cannot reach l1's transaction.
	_, err = s.AppendTransaction(context.Background(), models.Transaction{ID: "r1", LedgerID: "l2", Reverses: "t1"}, "t1")
	assert.True(t, models.IsCode(err, models.CodeTransactionNotFound))
}

func TestGetTransactionReturnsCopy(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")
	appendTx(t, s, "l1", "t1", time.Now(), models.Posting{AccountID: "a", Commodity: "USD", Amount: 5})

	got, err := s.GetTransaction(context.Background(), "l1", "t1")
	require.NoError(t, err)

	got.Postings[0].Amount = 999

	again, err := s.GetTransaction(context.Background(), "l1", "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.Postings[0].Amount)
}

func TestSumPostingsAsOfInclusive(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	appendTx(t, s, "l1", "t1", cutoff.Add(-time.Hour), models.Posting{AccountID: "a", Commodity: "USD", Amount: 100})
	appendTx(t, s, "l1", "t2", cutoff, models.Posting{AccountID: "a", Commodity: "USD", Amount: 10})
	appendTx(t, s, "l1", "t3", cutoff.Add(time.Hour), models.Posting{AccountID: "a", Commodity: "USD", Amount: 1})

	sum, err := s.SumPostings(context.Background(), "l1", []string{"a"}, "USD", cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(110), sum)

	sum, err = s.SumPostings(context.Background(), "l1", []string{"a", "b"}, "EUR", cutoff)
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestBalancesByCommodity(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	now := time.Now()
	appendTx(t, s, "l1", "t1", now,
		models.Posting{AccountID: "a", Commodity: "USD", Amount: 100},
		models.Posting{AccountID: "a", Commodity: "EUR", Amount: 200},
		models.Posting{AccountID: "b", Commodity: "USD", Amount: -100},
	)

	sums, err := s.BalancesByCommodity(context.Background(), "l1", "a", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USD": 100, "EUR": 200}, sums)
}

func TestListTransactionsPaging(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3", "t4"} {
		appendTx(t, s, "l1", id, base.Add(time.Duration(i)*time.Hour),
			models.Posting{AccountID: "a", Commodity: "USD", Amount: int64(i)})
	}

	page, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{Ascending: true, Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t2", page[0].ID)
	assert.Equal(t, "t3", page[1].ID)

	empty, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListTransactionsStableOnTies(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	appendTx(t, s, "l1", "t1", ts)
	appendTx(t, s, "l1", "t2", ts)
	appendTx(t, s, "l1", "t3", ts)

	asc, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{Ascending: true})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, "t1", asc[0].ID)
	assert.Equal(t, "t3", asc[2].ID)

	// Descending reverses ties too: latest append first.
	desc, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, "t3", desc[0].ID)
	assert.Equal(t, "t1", desc[2].ID)
}

func TestListTransactionsSignFilter(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	now := time.Now()
	appendTx(t, s, "l1", "credit", now,
		models.Posting{AccountID: "a", Commodity: "USD", Amount: 100},
		models.Posting{AccountID: "b", Commodity: "USD", Amount: -100})
	appendTx(t, s, "l1", "debit", now,
		models.Posting{AccountID: "a", Commodity: "USD", Amount: -40},
		models.Posting{AccountID: "b", Commodity: "USD", Amount: 40})
	appendTx(t, s, "l1", "wash", now,
		models.Posting{AccountID: "a", Commodity: "USD", Amount: 25},
		models.Posting{AccountID: "a", Commodity: "USD", Amount: -25})

	for sign, want := range map[string]string{
		interfaces.SignCredit: "credit",
		interfaces.SignDebit:  "debit",
		interfaces.SignZero:   "wash",
	} {
		got, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{AccountID: "a", Sign: sign})
		require.NoError(t, err)
		require.Len(t, got, 1, "sign %q", sign)
		assert.Equal(t, want, got[0].ID)
	}

	// Sign applies to the net effect on the filtered account only.
	fromB, err := s.ListTransactions(context.Background(), "l1", interfaces.TransactionFilter{AccountID: "b", Sign: interfaces.SignCredit})
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, "debit", fromB[0].ID)
}

func TestCommodityInUse(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	require.NoError(t, s.SaveCommodity(context.Background(), models.Commodity{LedgerID: "l1", Code: "USD", Scale: 2}))

	inUse, err := s.CommodityInUse(context.Background(), "l1", "USD")
	require.NoError(t, err)
	assert.False(t, inUse)

	appendTx(t, s, "l1", "t1", time.Now(), models.Posting{AccountID: "a", Commodity: "USD", Amount: 1})

	inUse, err = s.CommodityInUse(context.Background(), "l1", "USD")
	require.NoError(t, err)
	assert.True(t, inUse)
}

func TestAccountHasPostings(t *testing.T) {
	s := NewStore()
	seedLedger(t, s, "l1")

	has, err := s.AccountHasPostings(context.Background(), "l1", "a")
	require.NoError(t, err)
	assert.False(t, has)

	appendTx(t, s, "l1", "t1", time.Now(), models.Posting{AccountID: "a", Commodity: "USD", Amount: 1})

	has, err = s.AccountHasPostings(context.Background(), "l1", "a")
	require.NoError(t, err)
	assert.True(t, has)
}
