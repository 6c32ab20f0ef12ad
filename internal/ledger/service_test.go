package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account

	// applyHook runs before a delta is applied; returning an error aborts
	// the call. Used to inject store failures mid-operation.
	applyHook func(accountID uuid.UUID, delta decimal.Decimal) error
}

func newFakeAccountStore(accounts ...*Account) *fakeAccountStore {
	s := &fakeAccountStore{accounts: make(map[uuid.UUID]*Account)}
	for _, a := range accounts {
		cp := *a
		s.accounts[a.ID] = &cp
	}
	return s
}

func (s *fakeAccountStore) GetByID(_ context.Context, accountID uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAccountStore) GetByUserID(_ context.Context, userID uuid.UUID) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *fakeAccountStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *fakeAccountStore) ApplyDelta(_ context.Context, accountID uuid.UUID, delta decimal.Decimal) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applyHook != nil {
		if err := s.applyHook(accountID, delta); err != nil {
			return nil, err
		}
	}

	a, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	next := a.Balance.Add(delta)
	if next.Sign() < 0 {
		return nil, ErrInsufficientFunds
	}
	a.Balance = next
	cp := *a
	return &cp, nil
}

func (s *fakeAccountStore) balance(t *testing.T, accountID uuid.UUID) decimal.Decimal {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	require.True(t, ok, "account %s missing", accountID)
	return a.Balance
}

type fakeTransactionStore struct {
	mu        sync.Mutex
	txs       []Transaction
	createErr error
	failAfter int // fail the (failAfter+1)-th Create when >= 0
	created   int
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{failAfter: -1}
}

func (s *fakeTransactionStore) Create(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil && (s.failAfter < 0 || s.created >= s.failAfter) {
		return s.createErr
	}
	s.created++
	s.txs = append(s.txs, *tx)
	return nil
}

func (s *fakeTransactionStore) GetByAccountID(_ context.Context, accountID uuid.UUID) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeTransactionStore) GetMonthlyStatement(_ context.Context, accountID uuid.UUID, year, month int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.txs {
		if tx.AccountID == accountID && tx.CreatedAt.Year() == year && int(tx.CreatedAt.Month()) == month {
			out = append(out, tx)
		}
	}
	return out, nil
}

type invalidation struct {
	accountID uuid.UUID
	userID    uuid.UUID
}

type fakeInvalidator struct {
	mu        sync.Mutex
	accounts  []invalidation
	userLists []uuid.UUID
}

func (f *fakeInvalidator) InvalidateAccount(_ context.Context, accountID, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, invalidation{accountID: accountID, userID: userID})
}

func (f *fakeInvalidator) InvalidateUserAccounts(_ context.Context, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLists = append(f.userLists, userID)
}

func testAccount(balance string) *Account {
	return &Account{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		AccountNumber: "482915306712",
		Currency:      "USD",
		Balance:       decimal.RequireFromString(balance),
		CreatedAt:     time.Now().UTC(),
	}
}

func newTestService(accounts *fakeAccountStore, txs *fakeTransactionStore, inv *fakeInvalidator) *Service {
	return NewService(accounts, txs, inv, nil, slog.Default())
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	txStore := newFakeTransactionStore()
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, txStore, inv)

	tx, err := svc.Deposit(ctx, acct.ID, decimal.RequireFromString("100.50"), "DEP1")
	require.NoError(t, err)

	assert.Equal(t, acct.ID, tx.AccountID)
	assert.Equal(t, TypeDeposit, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, "DEP1", tx.Reference)

	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.RequireFromString("350.50")))
	require.Len(t, txStore.txs, 1)
	require.Len(t, inv.accounts, 1)
	assert.Equal(t, invalidation{accountID: acct.ID, userID: acct.UserID}, inv.accounts[0])
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	txStore := newFakeTransactionStore()
	svc := newTestService(accounts, txStore, &fakeInvalidator{})

	for _, amount := range []string{"0", "-10"} {
		_, err := svc.Deposit(ctx, acct.ID, decimal.RequireFromString(amount), "DEP")
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %s", amount)
	}

	// Validation failures must never reach the store's write path.
	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.RequireFromString("250")))
	assert.Empty(t, txStore.txs)
}

func TestDepositUnknownAccount(t *testing.T) {
	svc := newTestService(newFakeAccountStore(), newFakeTransactionStore(), &fakeInvalidator{})
	_, err := svc.Deposit(context.Background(), uuid.New(), decimal.NewFromInt(10), "DEP")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestDepositRollsBackWhenRecordFails(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	txStore := newFakeTransactionStore()
	txStore.createErr = errors.New("disk full")
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, txStore, inv)

	_, err := svc.Deposit(ctx, acct.ID, decimal.NewFromInt(100), "DEP1")
	require.Error(t, err)

	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.RequireFromString("250")),
		"balance change must be reversed when the transaction record fails")
	assert.Empty(t, inv.accounts, "no invalidation for a failed mutation")
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	txStore := newFakeTransactionStore()
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, txStore, inv)

	tx, err := svc.Withdraw(ctx, acct.ID, decimal.NewFromInt(100), "WD1")
	require.NoError(t, err)

	assert.Equal(t, TypeWithdrawal, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(100)), "legs record positive magnitudes")
	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.NewFromInt(150)))
	require.Len(t, inv.accounts, 1)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	txStore := newFakeTransactionStore()
	svc := newTestService(accounts, txStore, &fakeInvalidator{})

	_, err := svc.Withdraw(ctx, acct.ID, decimal.NewFromInt(300), "WD1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.NewFromInt(250)), "balance untouched")
	assert.Empty(t, txStore.txs)
}

func TestWithdrawExactBalance(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("250")
	accounts := newFakeAccountStore(acct)
	svc := newTestService(accounts, newFakeTransactionStore(), &fakeInvalidator{})

	_, err := svc.Withdraw(ctx, acct.ID, decimal.NewFromInt(250), "WD1")
	require.NoError(t, err)
	assert.True(t, accounts.balance(t, acct.ID).IsZero())
}

func TestConcurrentWithdrawalsExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	acct := testAccount("500")
	accounts := newFakeAccountStore(acct)
	svc := newTestService(accounts, newFakeTransactionStore(), &fakeInvalidator{})

	const workers = 8
	amount := decimal.NewFromInt(500)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Withdraw(ctx, acct.ID, amount, "WD")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one full-balance withdrawal may win")
	assert.True(t, accounts.balance(t, acct.ID).IsZero())
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	sender := testAccount("500")
	receiver := testAccount("300")
	accounts := newFakeAccountStore(sender, receiver)
	txStore := newFakeTransactionStore()
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, txStore, inv)

	tx, err := svc.Transfer(ctx, sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF1")
	require.NoError(t, err)

	assert.Equal(t, sender.ID, tx.AccountID, "sender leg is returned")
	assert.Equal(t, TypeWithdrawal, tx.Type)

	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(400)))
	assert.True(t, accounts.balance(t, receiver.ID).Equal(decimal.NewFromInt(400)))

	require.Len(t, txStore.txs, 2)
	for _, recorded := range txStore.txs {
		assert.Equal(t, "TRF1", recorded.Reference)
		assert.True(t, recorded.Amount.Equal(decimal.NewFromInt(100)))
	}
	assert.Equal(t, sender.ID, txStore.txs[0].AccountID)
	assert.Equal(t, receiver.ID, txStore.txs[1].AccountID)

	require.Len(t, inv.accounts, 2, "both sides invalidated")
	assert.Equal(t, invalidation{accountID: sender.ID, userID: sender.UserID}, inv.accounts[0])
	assert.Equal(t, invalidation{accountID: receiver.ID, userID: receiver.UserID}, inv.accounts[1])
}

func TestTransferSameAccount(t *testing.T) {
	acct := testAccount("500")
	accounts := newFakeAccountStore(acct)
	svc := newTestService(accounts, newFakeTransactionStore(), &fakeInvalidator{})

	_, err := svc.Transfer(context.Background(), acct.ID, acct.ID, decimal.NewFromInt(10), "TRF")
	assert.ErrorIs(t, err, ErrSameAccountTransfer)
	assert.True(t, accounts.balance(t, acct.ID).Equal(decimal.NewFromInt(500)))
}

func TestTransferInsufficientFunds(t *testing.T) {
	sender := testAccount("50")
	receiver := testAccount("300")
	accounts := newFakeAccountStore(sender, receiver)
	svc := newTestService(accounts, newFakeTransactionStore(), &fakeInvalidator{})

	_, err := svc.Transfer(context.Background(), sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(50)))
	assert.True(t, accounts.balance(t, receiver.ID).Equal(decimal.NewFromInt(300)))
}

func TestTransferMissingReceiverLeavesSenderUntouched(t *testing.T) {
	sender := testAccount("500")
	accounts := newFakeAccountStore(sender)
	svc := newTestService(accounts, newFakeTransactionStore(), &fakeInvalidator{})

	_, err := svc.Transfer(context.Background(), sender.ID, uuid.New(), decimal.NewFromInt(100), "TRF")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(500)))
}

func TestTransferCompensatesFailedCredit(t *testing.T) {
	sender := testAccount("500")
	receiver := testAccount("300")
	accounts := newFakeAccountStore(sender, receiver)
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, newFakeTransactionStore(), inv)

	storeDown := errors.New("connection reset")
	credits := 0
	accounts.applyHook = func(accountID uuid.UUID, delta decimal.Decimal) error {
		if accountID == receiver.ID && delta.Sign() > 0 {
			credits++
			return storeDown
		}
		return nil
	}

	_, err := svc.Transfer(context.Background(), sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF")
	require.ErrorIs(t, err, storeDown)

	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(500)),
		"debit must be reversed when the credit fails")
	assert.True(t, accounts.balance(t, receiver.ID).Equal(decimal.NewFromInt(300)))
	assert.Empty(t, inv.accounts)
}

func TestTransferInvalidatesBothSidesWhenReceiverLegRecordFails(t *testing.T) {
	sender := testAccount("500")
	receiver := testAccount("300")
	accounts := newFakeAccountStore(sender, receiver)
	txStore := newFakeTransactionStore()
	txStore.createErr = errors.New("disk full")
	txStore.failAfter = 1
	inv := &fakeInvalidator{}
	svc := newTestService(accounts, txStore, inv)

	_, err := svc.Transfer(context.Background(), sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF")
	require.Error(t, err)

	// The sender leg recorded and both balances moved before the failure.
	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(400)))
	assert.True(t, accounts.balance(t, receiver.ID).Equal(decimal.NewFromInt(400)))
	require.Len(t, txStore.txs, 1)

	// Balances durably changed, so both key sets must be dropped even
	// though the transfer reported an error.
	require.Len(t, inv.accounts, 2)
	assert.Equal(t, invalidation{accountID: sender.ID, userID: sender.UserID}, inv.accounts[0])
	assert.Equal(t, invalidation{accountID: receiver.ID, userID: receiver.UserID}, inv.accounts[1])
}

func TestTransferCompensatesFailedSenderLegRecord(t *testing.T) {
	sender := testAccount("500")
	receiver := testAccount("300")
	accounts := newFakeAccountStore(sender, receiver)
	txStore := newFakeTransactionStore()
	txStore.createErr = errors.New("disk full")
	svc := newTestService(accounts, txStore, &fakeInvalidator{})

	_, err := svc.Transfer(context.Background(), sender.ID, receiver.ID, decimal.NewFromInt(100), "TRF")
	require.Error(t, err)

	assert.True(t, accounts.balance(t, sender.ID).Equal(decimal.NewFromInt(500)))
	assert.True(t, accounts.balance(t, receiver.ID).Equal(decimal.NewFromInt(300)))
}
