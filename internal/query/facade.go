package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/internal/cache"
	"github.com/example/bankledger/internal/ledger"
)

// Facade is the read side: every lookup goes through the cache coordinator
// and falls back to the stores on a miss. It never mutates anything.
type Facade struct {
	accounts ledger.AccountStore
	txs      ledger.TransactionStore
	cache    *cache.Coordinator
}

func NewFacade(accounts ledger.AccountStore, txs ledger.TransactionStore, coordinator *cache.Coordinator) *Facade {
	return &Facade{accounts: accounts, txs: txs, cache: coordinator}
}

// GetBalance returns the current balance. A missing account surfaces as
// ledger.ErrAccountNotFound and is never cached.
func (f *Facade) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return cache.ReadThrough(ctx, f.cache, cache.BalanceKey(accountID), f.cache.Options().Short,
		func(ctx context.Context) (decimal.Decimal, error) {
			account, err := f.accounts.GetByID(ctx, accountID)
			if err != nil {
				return decimal.Decimal{}, fmt.Errorf("load balance: %w", err)
			}
			return account.Balance, nil
		})
}

// GetAccount returns the account snapshot.
func (f *Facade) GetAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error) {
	return cache.ReadThrough(ctx, f.cache, cache.AccountKey(accountID), f.cache.Options().Short,
		func(ctx context.Context) (*ledger.Account, error) {
			return f.accounts.GetByID(ctx, accountID)
		})
}

// GetUserAccounts lists the accounts owned by a user.
func (f *Facade) GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	return cache.ReadThrough(ctx, f.cache, cache.UserAccountsKey(userID), f.cache.Options().Default,
		func(ctx context.Context) ([]ledger.Account, error) {
			accounts, err := f.accounts.GetByUserID(ctx, userID)
			if err != nil {
				return nil, err
			}
			if accounts == nil {
				accounts = []ledger.Account{}
			}
			return accounts, nil
		})
}

// GetTransactions returns the account's full history, newest first. An
// account with no history yields an empty slice, not nil.
func (f *Facade) GetTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	return cache.ReadThrough(ctx, f.cache, cache.TransactionsKey(accountID), f.cache.Options().Default,
		func(ctx context.Context) ([]ledger.Transaction, error) {
			txs, err := f.txs.GetByAccountID(ctx, accountID)
			if err != nil {
				return nil, err
			}
			if txs == nil {
				txs = []ledger.Transaction{}
			}
			return txs, nil
		})
}

// GetMonthlyStatement returns the transactions of one calendar month.
// Closed months are immutable and cache under the long TTL.
func (f *Facade) GetMonthlyStatement(ctx context.Context, accountID uuid.UUID, year, month int) ([]ledger.Transaction, error) {
	key := cache.MonthlyStatementKey(accountID, year, month)
	return cache.ReadThrough(ctx, f.cache, key, f.cache.StatementTTL(year, month),
		func(ctx context.Context) ([]ledger.Transaction, error) {
			txs, err := f.txs.GetMonthlyStatement(ctx, accountID, year, month)
			if err != nil {
				return nil, err
			}
			if txs == nil {
				txs = []ledger.Transaction{}
			}
			return txs, nil
		})
}
