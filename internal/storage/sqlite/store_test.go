package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bankledger/internal/ledger"
)

type noopInvalidator struct{}

func (noopInvalidator) InvalidateAccount(context.Context, uuid.UUID, uuid.UUID) {}
func (noopInvalidator) InvalidateUserAccounts(context.Context, uuid.UUID)       {}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, store *AccountStore, balance string) *ledger.Account {
	t.Helper()
	account := &ledger.Account{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AccountNumber: uuid.NewString()[:12],
		Currency:      "USD",
		Balance:       decimal.RequireFromString(balance),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), account))
	return account
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewAccountStore(db)

	acct := seedAccount(t, store, "120.5000")

	got, err := store.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, acct.UserID, got.UserID)
	assert.Equal(t, acct.AccountNumber, got.AccountNumber)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("120.5")))

	byUser, err := store.GetByUserID(ctx, acct.UserID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, acct.ID, byUser[0].ID)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCreateEnforcesOneAccountPerUser(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewAccountStore(db)

	acct := seedAccount(t, store, "0")

	// A second insert for the same user must be rejected by the store
	// itself, regardless of any service-level check that ran before it.
	dup := &ledger.Account{
		ID:            uuid.New(),
		UserID:        acct.UserID,
		AccountNumber: uuid.NewString()[:12],
		Currency:      "EUR",
		Balance:       decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}
	err := store.Create(ctx, dup)
	assert.ErrorIs(t, err, ledger.ErrAccountExists)

	remaining, err := store.GetByUserID(ctx, acct.UserID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, acct.ID, remaining[0].ID)
}

func TestApplyDeltaGuards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := NewAccountStore(db)
	acct := seedAccount(t, store, "100")

	updated, err := store.ApplyDelta(ctx, acct.ID, decimal.RequireFromString("-40.25"))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("59.75")))

	_, err = store.ApplyDelta(ctx, acct.ID, decimal.NewFromInt(-60))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, err = store.ApplyDelta(ctx, uuid.New(), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// Balance untouched by the rejected delta.
	got, err := store.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("59.75")))
}

func TestMonthlyStatementFiltering(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountStore(db)
	txs := NewTransactionStore(db)
	acct := seedAccount(t, accounts, "0")

	mk := func(when time.Time, amount string) {
		require.NoError(t, txs.Create(ctx, &ledger.Transaction{
			ID:        uuid.New(),
			AccountID: acct.ID,
			Type:      ledger.TypeDeposit,
			Amount:    decimal.RequireFromString(amount),
			Reference: "STMT",
			CreatedAt: when,
		}))
	}

	mk(time.Date(2026, time.July, 3, 9, 0, 0, 0, time.UTC), "10")
	mk(time.Date(2026, time.July, 28, 18, 30, 0, 0, time.UTC), "20")
	mk(time.Date(2026, time.August, 1, 0, 0, 1, 0, time.UTC), "30")

	july, err := txs.GetMonthlyStatement(ctx, acct.ID, 2026, 7)
	require.NoError(t, err)
	require.Len(t, july, 2)
	assert.True(t, july[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, july[1].Amount.Equal(decimal.NewFromInt(20)))

	august, err := txs.GetMonthlyStatement(ctx, acct.ID, 2026, 8)
	require.NoError(t, err)
	require.Len(t, august, 1)

	empty, err := txs.GetMonthlyStatement(ctx, acct.ID, 2026, 6)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedgerEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountStore(db)
	txs := NewTransactionStore(db)
	svc := ledger.NewService(accounts, txs, noopInvalidator{}, nil, slog.Default())

	sender := seedAccount(t, accounts, "500")
	receiver := seedAccount(t, accounts, "300")

	_, err := svc.Deposit(ctx, sender.ID, decimal.NewFromInt(50), "DEP1")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, sender.ID, decimal.NewFromInt(50), "WD1")
	require.NoError(t, err)

	leg, err := svc.Transfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF1")
	require.NoError(t, err)
	assert.Equal(t, sender.ID, leg.AccountID)

	senderAcct, err := accounts.GetByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.True(t, senderAcct.Balance.Equal(decimal.NewFromInt(400)))

	receiverAcct, err := accounts.GetByID(ctx, receiver.ID)
	require.NoError(t, err)
	assert.True(t, receiverAcct.Balance.Equal(decimal.NewFromInt(400)))

	senderHistory, err := txs.GetByAccountID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Len(t, senderHistory, 3)

	receiverHistory, err := txs.GetByAccountID(ctx, receiver.ID)
	require.NoError(t, err)
	require.Len(t, receiverHistory, 1)
	assert.Equal(t, "TRF1", receiverHistory[0].Reference)
	assert.Equal(t, ledger.TypeDeposit, receiverHistory[0].Type)
}

func TestConcurrentWithdrawalsAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountStore(db)
	txs := NewTransactionStore(db)
	svc := ledger.NewService(accounts, txs, noopInvalidator{}, nil, slog.Default())

	acct := seedAccount(t, accounts, "500")

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Withdraw(ctx, acct.ID, decimal.NewFromInt(500), "WD")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	final, err := accounts.GetByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, final.Balance.GreaterThanOrEqual(decimal.Zero), "balance never goes negative")
	assert.True(t, final.Balance.IsZero())
}
