package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/internal/ledger"
)

const queryTimeout = 5 * time.Second

// Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// AccountStore implements ledger.AccountStore over a pgx pool.
type AccountStore struct {
	Pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{Pool: pool}
}

func (s *AccountStore) GetByID(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a ledger.Account
	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, account_number, currency, balance, created_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Currency, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, storeErr("get account", err)
	}
	return &a, nil
}

func (s *AccountStore) GetByUserID(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `
		SELECT id, user_id, account_number, currency, balance, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, storeErr("list user accounts", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Currency, &a.Balance, &a.CreatedAt); err != nil {
			return nil, storeErr("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list user accounts", err)
	}
	return accounts, nil
}

func (s *AccountStore) Create(ctx context.Context, account *ledger.Account) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO accounts (id, user_id, account_number, currency, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, account.ID, account.UserID, account.AccountNumber, account.Currency, account.Balance, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
			strings.Contains(pgErr.ConstraintName, "user_id") {
			return ledger.ErrAccountExists
		}
		return storeErr("insert account", err)
	}
	return nil
}

// ApplyDelta performs the balance check and update as one conditional UPDATE,
// so two concurrent withdrawals can never both pass against a stale read.
func (s *AccountStore) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*ledger.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// The existence probe rides in the same statement as the guarded
	// UPDATE: no row means the account is missing, a row with NULLs means
	// the guard rejected the delta. One snapshot, so the classification
	// cannot race a concurrent insert or delete.
	var (
		id        *uuid.UUID
		userID    *uuid.UUID
		number    *string
		currency  *string
		balance   *decimal.Decimal
		createdAt *time.Time
	)
	err := s.Pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE accounts
			SET balance = balance + $2
			WHERE id = $1 AND balance + $2 >= 0
			RETURNING id, user_id, account_number, currency, balance, created_at
		)
		SELECT u.id, u.user_id, u.account_number, u.currency, u.balance, u.created_at
		FROM accounts a
		LEFT JOIN updated u ON u.id = a.id
		WHERE a.id = $1
	`, accountID, delta).Scan(&id, &userID, &number, &currency, &balance, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, storeErr("apply balance delta", err)
	}
	if id == nil {
		return nil, ledger.ErrInsufficientFunds
	}
	return &ledger.Account{
		ID:            *id,
		UserID:        *userID,
		AccountNumber: *number,
		Currency:      *currency,
		Balance:       *balance,
		CreatedAt:     *createdAt,
	}, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ledger.ErrStoreUnavailable, err))
}
