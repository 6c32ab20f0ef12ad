package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStore is the durable home of account records. ApplyDelta is the only
// balance mutation path: implementations must perform the balance check and
// update as one atomic operation so that two concurrent withdrawals cannot
// both pass against a stale read.
type AccountStore interface {
	GetByID(ctx context.Context, accountID uuid.UUID) (*Account, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]Account, error)
	Create(ctx context.Context, account *Account) error

	// ApplyDelta adds delta (which may be negative) to the account balance,
	// failing with ErrInsufficientFunds if the result would drop below zero
	// and ErrAccountNotFound if the account does not exist. It returns the
	// account as it stands after the update.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (*Account, error)
}

// TransactionStore is append-only: records are created once and never
// updated or deleted.
type TransactionStore interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)
	GetMonthlyStatement(ctx context.Context, accountID uuid.UUID, year int, month int) ([]Transaction, error)
}

// CacheInvalidator is the ledger's view of the cache layer. Implementations
// are best-effort: they log failures and never report them back, so a cache
// outage cannot roll back a committed mutation.
type CacheInvalidator interface {
	InvalidateAccount(ctx context.Context, accountID, userID uuid.UUID)
	InvalidateUserAccounts(ctx context.Context, userID uuid.UUID)
}
