// Package sqlite backs the ledger stores with an embedded database for local
// development and end-to-end tests. SQLite allows a single writer at a time,
// so ApplyDelta runs its check-and-update inside one write transaction and
// stays linearizable per account.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    account_number TEXT NOT NULL UNIQUE,
    currency       TEXT NOT NULL,
    balance        TEXT NOT NULL,
    created_at     TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts (user_id);

CREATE TABLE IF NOT EXISTS transactions (
    id         TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts (id),
    type       TEXT NOT NULL,
    amount     TEXT NOT NULL,
    reference  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, created_at);
`

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for throwaway instances in tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// AccountStore implements ledger.AccountStore over database/sql + sqlite3.
type AccountStore struct {
	DB *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{DB: db}
}

func (s *AccountStore) GetByID(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, account_number, currency, balance, created_at
		FROM accounts WHERE id = ?
	`, accountID.String())
	return scanAccount(row)
}

func (s *AccountStore) GetByUserID(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, account_number, currency, balance, created_at
		FROM accounts WHERE user_id = ? ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, storeErr("list user accounts", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list user accounts", err)
	}
	return accounts, nil
}

func (s *AccountStore) Create(ctx context.Context, account *ledger.Account) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, account_number, currency, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, account.ID.String(), account.UserID.String(), account.AccountNumber,
		account.Currency, account.Balance.String(), account.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(err.Error(), "accounts.user_id") {
			return ledger.ErrAccountExists
		}
		return storeErr("insert account", err)
	}
	return nil
}

func (s *AccountStore) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*ledger.Account, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, accountID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeErr("read balance", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, storeErr("parse balance", err)
	}

	next := balance.Add(delta)
	if next.Sign() < 0 {
		return nil, ledger.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, next.String(), accountID.String()); err != nil {
		return nil, storeErr("write balance", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, account_number, currency, balance, created_at
		FROM accounts WHERE id = ?
	`, accountID.String())
	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}
	return account, nil
}

// TransactionStore implements ledger.TransactionStore over sqlite.
type TransactionStore struct {
	DB *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{DB: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx *ledger.Transaction) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tx.ID.String(), tx.AccountID.String(), string(tx.Type),
		tx.Amount.String(), tx.Reference, tx.CreatedAt)
	if err != nil {
		return storeErr("insert transaction", err)
	}
	return nil
}

func (s *TransactionStore) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, account_id, type, amount, reference, created_at
		FROM transactions WHERE account_id = ? ORDER BY created_at DESC
	`, accountID.String())
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *TransactionStore) GetMonthlyStatement(ctx context.Context, accountID uuid.UUID, year, month int) ([]ledger.Transaction, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, account_id, type, amount, reference, created_at
		FROM transactions
		WHERE account_id = ?
		  AND CAST(strftime('%Y', created_at) AS INTEGER) = ?
		  AND CAST(strftime('%m', created_at) AS INTEGER) = ?
		ORDER BY created_at
	`, accountID.String(), year, month)
	if err != nil {
		return nil, storeErr("monthly statement", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		a               ledger.Account
		id, userID, raw string
		createdAt       time.Time
	)
	err := row.Scan(&id, &userID, &a.AccountNumber, &a.Currency, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeErr("scan account", err)
	}

	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, storeErr("parse account id", err)
	}
	if a.UserID, err = uuid.Parse(userID); err != nil {
		return nil, storeErr("parse user id", err)
	}
	if a.Balance, err = decimal.NewFromString(raw); err != nil {
		return nil, storeErr("parse balance", err)
	}
	a.CreatedAt = createdAt
	return &a, nil
}

func scanTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx                    ledger.Transaction
			id, accountID, txType string
			raw                   string
		)
		if err := rows.Scan(&id, &accountID, &txType, &raw, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, storeErr("scan transaction", err)
		}
		var err error
		if tx.ID, err = uuid.Parse(id); err != nil {
			return nil, storeErr("parse transaction id", err)
		}
		if tx.AccountID, err = uuid.Parse(accountID); err != nil {
			return nil, storeErr("parse account id", err)
		}
		if tx.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, storeErr("parse amount", err)
		}
		tx.Type = ledger.TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read transactions", err)
	}
	return txs, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ledger.ErrStoreUnavailable, err))
}
