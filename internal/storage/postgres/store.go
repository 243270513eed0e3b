// Package postgres is the durable storage collaborator backed by
// PostgreSQL. Transaction appends run in a serializable database
// transaction scoped to the ledger, so the append, the sequence bump and
// the reversed-by mark commit as one unit; serialization failures
// surface as retryable WRITE_CONFLICT domain errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/models"
)

// Store implements interfaces.Store on database/sql with the pq driver.
type Store struct {
	db *sql.DB
}

var _ interfaces.Store = (*Store)(nil)

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// translateErr maps driver failures onto domain error codes. 40001 is
// serialization_failure, 40P01 deadlock_detected; both mean the commit
// sequence should be retried against fresh state.
func translateErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return models.NewError(models.CodeWriteConflict, "", "storage write conflict: "+pqErr.Message)
		}
	}

	return err
}

func (s *Store) CreateLedger(ctx context.Context, ledger models.Ledger) error {
	const query = `INSERT INTO ledgers (id, name, description, default_commodity, lock_date, sequence, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		ledger.ID, ledger.Name, ledger.Description, ledger.DefaultCommodity,
		ledger.LockDate, ledger.CreatedAt, ledger.UpdatedAt,
	)

	return translateErr(err)
}

func (s *Store) GetLedger(ctx context.Context, ledgerID string) (models.Ledger, error) {
	const query = `SELECT id, name, description, default_commodity, lock_date, sequence, created_at, updated_at
	FROM ledgers WHERE id = $1`

	return scanLedger(s.db.QueryRowContext(ctx, query, ledgerID))
}

func scanLedger(row *sql.Row) (models.Ledger, error) {
	var (
		l        models.Ledger
		lockDate sql.NullTime
	)

	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.DefaultCommodity, &lockDate, &l.Sequence, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ledger{}, models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	if err != nil {
		return models.Ledger{}, translateErr(err)
	}

	if lockDate.Valid {
		t := lockDate.Time
		l.LockDate = &t
	}

	return l, nil
}

func (s *Store) UpdateLedger(ctx context.Context, ledger models.Ledger) error {
	const query = `UPDATE ledgers SET name = $2, description = $3, default_commodity = $4, lock_date = $5, updated_at = $6
	WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		ledger.ID, ledger.Name, ledger.Description, ledger.DefaultCommodity, ledger.LockDate, ledger.UpdatedAt,
	)
	if err != nil {
		return translateErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	return nil
}

func (s *Store) SaveCommodity(ctx context.Context, commodity models.Commodity) error {
	const query = `INSERT INTO commodities (ledger_id, code, name, symbol, scale, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (ledger_id, code)
	DO UPDATE SET name = EXCLUDED.name, symbol = EXCLUDED.symbol, scale = EXCLUDED.scale, updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		commodity.LedgerID, commodity.Code, commodity.Name, commodity.Symbol,
		commodity.Scale, commodity.CreatedAt, commodity.UpdatedAt,
	)

	return translateErr(err)
}

func (s *Store) GetCommodity(ctx context.Context, ledgerID, code string) (models.Commodity, error) {
	const query = `SELECT ledger_id, code, name, symbol, scale, created_at, updated_at
	FROM commodities WHERE ledger_id = $1 AND code = $2`

	var c models.Commodity

	err := s.db.QueryRowContext(ctx, query, ledgerID, code).
		Scan(&c.LedgerID, &c.Code, &c.Name, &c.Symbol, &c.Scale, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Commodity{}, models.NewError(models.CodeUnknownCommodity, "commodity", "commodity "+code+" is not registered")
	}

	if err != nil {
		return models.Commodity{}, translateErr(err)
	}

	return c, nil
}

func (s *Store) ListCommodities(ctx context.Context, ledgerID string) ([]models.Commodity, error) {
	const query = `SELECT ledger_id, code, name, symbol, scale, created_at, updated_at
	FROM commodities WHERE ledger_id = $1 ORDER BY code`

	rows, err := s.db.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []models.Commodity

	for rows.Next() {
		var c models.Commodity
		if err := rows.Scan(&c.LedgerID, &c.Code, &c.Name, &c.Symbol, &c.Scale, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func (s *Store) CommodityInUse(ctx context.Context, ledgerID, code string) (bool, error) {
	const query = `SELECT 1 FROM postings WHERE ledger_id = $1 AND commodity = $2 LIMIT 1`

	var one int

	err := s.db.QueryRowContext(ctx, query, ledgerID, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, translateErr(err)
	}

	return true, nil
}

func (s *Store) SaveAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, ledger_id, parent_id, name, role, commodity, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.LedgerID, nullable(account.ParentID), account.Name,
		string(account.Role), account.Commodity, account.CreatedAt, account.UpdatedAt,
	)

	return translateErr(err)
}

func (s *Store) UpdateAccount(ctx context.Context, account models.Account) error {
	const query = `UPDATE accounts SET parent_id = $3, name = $4, role = $5, commodity = $6, updated_at = $7
	WHERE id = $1 AND ledger_id = $2`

	res, err := s.db.ExecContext(ctx, query,
		account.ID, account.LedgerID, nullable(account.ParentID), account.Name,
		string(account.Role), account.Commodity, account.UpdatedAt,
	)
	if err != nil {
		return translateErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.NewError(models.CodeAccountNotFound, "account_id", "account not found in ledger")
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, ledgerID, accountID string) (models.Account, error) {
	const query = `SELECT id, ledger_id, parent_id, name, role, commodity, created_at, updated_at
	FROM accounts WHERE ledger_id = $1 AND id = $2`

	var (
		a        models.Account
		parentID sql.NullString
		role     string
	)

	err := s.db.QueryRowContext(ctx, query, ledgerID, accountID).
		Scan(&a.ID, &a.LedgerID, &parentID, &a.Name, &role, &a.Commodity, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.NewError(models.CodeAccountNotFound, "account_id", "account not found in ledger")
	}

	if err != nil {
		return models.Account{}, translateErr(err)
	}

	a.ParentID = parentID.String
	a.Role = models.Role(role)

	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, ledgerID string) ([]models.Account, error) {
	const query = `SELECT id, ledger_id, parent_id, name, role, commodity, created_at, updated_at
	FROM accounts WHERE ledger_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []models.Account

	for rows.Next() {
		var (
			a        models.Account
			parentID sql.NullString
			role     string
		)

		if err := rows.Scan(&a.ID, &a.LedgerID, &parentID, &a.Name, &role, &a.Commodity, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}

		a.ParentID = parentID.String
		a.Role = models.Role(role)
		out = append(out, a)
	}

	return out, rows.Err()
}

func (s *Store) AccountHasPostings(ctx context.Context, ledgerID, accountID string) (bool, error) {
	const query = `SELECT 1 FROM postings WHERE ledger_id = $1 AND account_id = $2 LIMIT 1`

	var one int

	err := s.db.QueryRowContext(ctx, query, ledgerID, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, translateErr(err)
	}

	return true, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx models.Transaction, reversedID string) (_ uint64, err error) {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, translateErr(err)
	}

	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	var seq uint64

	err = dbTx.QueryRowContext(ctx,
		`UPDATE ledgers SET sequence = sequence + 1, updated_at = $2 WHERE id = $1 RETURNING sequence`,
		tx.LedgerID, tx.CreatedAt,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	if err != nil {
		return 0, translateErr(err)
	}

	_, err = dbTx.ExecContext(ctx,
		`INSERT INTO transactions (id, ledger_id, seq, "timestamp", description, created_by, reverses, reversed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)`,
		tx.ID, tx.LedgerID, seq, tx.Timestamp, tx.Description, tx.CreatedBy, nullable(tx.Reverses), tx.CreatedAt,
	)
	if err != nil {
		return 0, translateErr(err)
	}

	// The reversal row must exist before reversed_by can reference it;
	// the foreign key is checked per statement.
	if reversedID != "" {
		res, markErr := dbTx.ExecContext(ctx,
			`UPDATE transactions SET reversed_by = $1 WHERE id = $2 AND ledger_id = $3 AND reversed_by IS NULL`,
			tx.ID, reversedID, tx.LedgerID,
		)
		if markErr != nil {
			err = translateErr(markErr)
			return 0, err
		}

		affected, affErr := res.RowsAffected()
		if affErr != nil {
			err = affErr
			return 0, err
		}

		if affected == 0 {
			err = models.NewError(models.CodeAlreadyReversed, "transaction_id", "transaction was already reversed or does not exist")
			return 0, err
		}
	}

	for i, p := range tx.Postings {
		_, err = dbTx.ExecContext(ctx,
			`INSERT INTO postings (transaction_id, idx, ledger_id, account_id, commodity, amount, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tx.ID, i, tx.LedgerID, p.AccountID, p.Commodity, p.Amount, p.Memo,
		)
		if err != nil {
			return 0, translateErr(err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return 0, translateErr(err)
	}

	return seq, nil
}

func (s *Store) GetTransaction(ctx context.Context, ledgerID, transactionID string) (models.Transaction, error) {
	const query = `SELECT id, ledger_id, "timestamp", description, created_by, reverses, reversed_by, created_at
	FROM transactions WHERE ledger_id = $1 AND id = $2`

	var (
		tx                   models.Transaction
		reverses, reversedBy sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, ledgerID, transactionID).
		Scan(&tx.ID, &tx.LedgerID, &tx.Timestamp, &tx.Description, &tx.CreatedBy, &reverses, &reversedBy, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, models.NewError(models.CodeTransactionNotFound, "transaction_id", "transaction not found")
	}

	if err != nil {
		return models.Transaction{}, translateErr(err)
	}

	tx.Reverses = reverses.String
	tx.ReversedBy = reversedBy.String

	tx.Postings, err = s.loadPostings(ctx, tx.ID)
	if err != nil {
		return models.Transaction{}, err
	}

	return tx, nil
}

func (s *Store) loadPostings(ctx context.Context, transactionID string) ([]models.Posting, error) {
	const query = `SELECT account_id, commodity, amount, memo
	FROM postings WHERE transaction_id = $1 ORDER BY idx`

	rows, err := s.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var postings []models.Posting

	for rows.Next() {
		var p models.Posting
		if err := rows.Scan(&p.AccountID, &p.Commodity, &p.Amount, &p.Memo); err != nil {
			return nil, err
		}

		postings = append(postings, p)
	}

	return postings, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, ledgerID string, filter interfaces.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT t.id, t.ledger_id, t."timestamp", t.description, t.created_by, t.reverses, t.reversed_by, t.created_at, t.seq
	FROM transactions t WHERE t.ledger_id = $1`

	args := []any{ledgerID}

	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM postings p WHERE p.transaction_id = t.id AND p.account_id = $%d)`, len(args))

		if op, ok := signOperator(filter.Sign); ok {
			query += fmt.Sprintf(` AND (SELECT COALESCE(SUM(p.amount), 0) FROM postings p WHERE p.transaction_id = t.id AND p.account_id = $%d) %s 0`, len(args), op)
		}
	}

	if filter.After != nil {
		args = append(args, *filter.After)
		query += fmt.Sprintf(` AND t."timestamp" >= $%d`, len(args))
	}

	if filter.Before != nil {
		args = append(args, *filter.Before)
		query += fmt.Sprintf(` AND t."timestamp" < $%d`, len(args))
	}

	if filter.Ascending {
		query += ` ORDER BY t."timestamp" ASC, t.seq ASC`
	} else {
		query += ` ORDER BY t."timestamp" DESC, t.seq DESC`
	}

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []models.Transaction

	for rows.Next() {
		var (
			tx                   models.Transaction
			reverses, reversedBy sql.NullString
			seq                  uint64
		)

		if err := rows.Scan(&tx.ID, &tx.LedgerID, &tx.Timestamp, &tx.Description, &tx.CreatedBy, &reverses, &reversedBy, &tx.CreatedAt, &seq); err != nil {
			return nil, err
		}

		tx.Reverses = reverses.String
		tx.ReversedBy = reversedBy.String
		out = append(out, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Postings, err = s.loadPostings(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (s *Store) SumPostings(ctx context.Context, ledgerID string, accountIDs []string, commodity string, asOf time.Time) (int64, error) {
	const query = `SELECT COALESCE(SUM(p.amount), 0)
	FROM postings p
	JOIN transactions t ON t.id = p.transaction_id
	WHERE p.ledger_id = $1 AND p.account_id = ANY($2) AND p.commodity = $3 AND t."timestamp" <= $4`

	var sum int64

	err := s.db.QueryRowContext(ctx, query, ledgerID, pq.Array(accountIDs), commodity, asOf).Scan(&sum)
	if err != nil {
		return 0, translateErr(err)
	}

	return sum, nil
}

func (s *Store) BalancesByCommodity(ctx context.Context, ledgerID, accountID string, asOf time.Time) (map[string]int64, error) {
	const query = `SELECT p.commodity, COALESCE(SUM(p.amount), 0)
	FROM postings p
	JOIN transactions t ON t.id = p.transaction_id
	WHERE p.ledger_id = $1 AND p.account_id = $2 AND t."timestamp" <= $3
	GROUP BY p.commodity`

	rows, err := s.db.QueryContext(ctx, query, ledgerID, accountID, asOf)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	sums := make(map[string]int64)

	for rows.Next() {
		var (
			code string
			sum  int64
		)

		if err := rows.Scan(&code, &sum); err != nil {
			return nil, err
		}

		sums[code] = sum
	}

	return sums, rows.Err()
}

func (s *Store) LedgerSequence(ctx context.Context, ledgerID string) (uint64, error) {
	const query = `SELECT sequence FROM ledgers WHERE id = $1`

	var seq uint64

	err := s.db.QueryRowContext(ctx, query, ledgerID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.NewError(models.CodeLedgerNotFound, "ledger_id", "ledger not found")
	}

	if err != nil {
		return 0, translateErr(err)
	}

	return seq, nil
}

// signOperator maps a TransactionFilter sign to the SQL comparison
// applied to the account's net posting sum.
func signOperator(sign string) (string, bool) {
	switch sign {
	case interfaces.SignCredit:
		return ">", true
	case interfaces.SignDebit:
		return "<", true
	case interfaces.SignZero:
		return "=", true
	}

	return "", false
}

// nullable maps empty strings to SQL NULL for optional references.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
