package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bankledger/internal/ledger"
)

// TransactionStore implements ledger.TransactionStore over a pgx pool.
// Rows are insert-only; there is no update or delete path.
type TransactionStore struct {
	Pool *pgxpool.Pool
}

func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{Pool: pool}
}

func (s *TransactionStore) Create(ctx context.Context, tx *ledger.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tx.ID, tx.AccountID, string(tx.Type), tx.Amount, tx.Reference, tx.CreatedAt)
	if err != nil {
		return storeErr("insert transaction", err)
	}
	return nil
}

func (s *TransactionStore) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT id, account_id, type, amount, reference, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *TransactionStore) GetMonthlyStatement(ctx context.Context, accountID uuid.UUID, year, month int) ([]ledger.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT id, account_id, type, amount, reference, created_at
		FROM transactions
		WHERE account_id = $1
		  AND EXTRACT(YEAR FROM created_at) = $2
		  AND EXTRACT(MONTH FROM created_at) = $3
		ORDER BY created_at
	`, accountID, year, month)
	if err != nil {
		return nil, storeErr("monthly statement", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.AccountID, &txType, &tx.Amount, &tx.Reference, &tx.CreatedAt); err != nil {
			return nil, storeErr("scan transaction", err)
		}
		tx.Type = ledger.TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read transactions", err)
	}
	return txs, nil
}
