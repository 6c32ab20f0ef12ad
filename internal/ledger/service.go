package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/pkg/audit"
)

// Auditor receives a tamper-evident record of every successful mutation.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// Service owns all balance mutation. It is the only component that writes
// through AccountStore.ApplyDelta, and it invalidates the cache after every
// successful mutation.
type Service struct {
	accounts AccountStore
	txs      TransactionStore
	cache    CacheInvalidator
	auditor  Auditor
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a ledger over the given stores. The auditor may be nil.
func NewService(accounts AccountStore, txs TransactionStore, cache CacheInvalidator, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		txs:      txs,
		cache:    cache,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
	}
}

// Deposit credits amount to the account and records the movement.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accounts.ApplyDelta(ctx, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("apply deposit: %w", err)
	}

	tx := s.newTransaction(accountID, TypeDeposit, amount, reference)
	if err := s.txs.Create(ctx, tx); err != nil {
		s.reverse(ctx, accountID, amount)
		return nil, fmt.Errorf("record deposit: %w", err)
	}

	s.audit("deposit", tx)
	s.cache.InvalidateAccount(ctx, account.ID, account.UserID)
	return tx, nil
}

// Withdraw debits amount from the account. The store enforces the
// non-negative balance invariant atomically, so a concurrent withdrawal
// cannot sneak past a stale balance read.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.accounts.ApplyDelta(ctx, accountID, amount.Neg())
	if err != nil {
		return nil, fmt.Errorf("apply withdrawal: %w", err)
	}

	tx := s.newTransaction(accountID, TypeWithdrawal, amount, reference)
	if err := s.txs.Create(ctx, tx); err != nil {
		s.reverse(ctx, accountID, amount.Neg())
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	s.audit("withdrawal", tx)
	s.cache.InvalidateAccount(ctx, account.ID, account.UserID)
	return tx, nil
}

// Transfer debits the sender and credits the receiver, producing one
// Transaction per leg under the same reference. The sender leg is returned.
// If the credit fails after the debit succeeded, the debit is reversed so the
// caller never observes a half-applied transfer.
func (s *Service) Transfer(ctx context.Context, fromAccountID, toAccountID uuid.UUID, amount decimal.Decimal, reference string) (*Transaction, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromAccountID == toAccountID {
		return nil, ErrSameAccountTransfer
	}

	// Confirm the receiver exists before touching the sender balance.
	receiver, err := s.accounts.GetByID(ctx, toAccountID)
	if err != nil {
		return nil, fmt.Errorf("load receiver: %w", err)
	}

	sender, err := s.accounts.ApplyDelta(ctx, fromAccountID, amount.Neg())
	if err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}

	if _, err := s.accounts.ApplyDelta(ctx, toAccountID, amount); err != nil {
		s.reverse(ctx, fromAccountID, amount.Neg())
		return nil, fmt.Errorf("credit receiver: %w", err)
	}

	senderTx := s.newTransaction(fromAccountID, TypeWithdrawal, amount, reference)
	receiverTx := s.newTransaction(toAccountID, TypeDeposit, amount, reference)

	if err := s.txs.Create(ctx, senderTx); err != nil {
		s.reverse(ctx, toAccountID, amount)
		s.reverse(ctx, fromAccountID, amount.Neg())
		return nil, fmt.Errorf("record sender leg: %w", err)
	}
	if err := s.txs.Create(ctx, receiverTx); err != nil {
		s.logger.Error("receiver leg not recorded, transfer balances already applied",
			"reference", reference,
			"from", fromAccountID,
			"to", toAccountID,
			"error", err,
		)
		// Both balances durably changed, so cached views are stale even
		// though the operation failed.
		s.cache.InvalidateAccount(ctx, sender.ID, sender.UserID)
		s.cache.InvalidateAccount(ctx, receiver.ID, receiver.UserID)
		return nil, fmt.Errorf("record receiver leg: %w", err)
	}

	s.audit("transfer", senderTx)
	s.cache.InvalidateAccount(ctx, sender.ID, sender.UserID)
	s.cache.InvalidateAccount(ctx, receiver.ID, receiver.UserID)
	return senderTx, nil
}

func (s *Service) newTransaction(accountID uuid.UUID, txType TransactionType, amount decimal.Decimal, reference string) *Transaction {
	return &Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      txType,
		Amount:    amount,
		Reference: reference,
		CreatedAt: s.now().UTC(),
	}
}

// reverse undoes a previously applied delta. Failure here means the books and
// the transaction log disagree, which is worth an operator's attention.
func (s *Service) reverse(ctx context.Context, accountID uuid.UUID, applied decimal.Decimal) {
	if _, err := s.accounts.ApplyDelta(ctx, accountID, applied.Neg()); err != nil {
		s.logger.Error("compensating balance reversal failed",
			"account_id", accountID,
			"delta", applied.Neg().String(),
			"error", err,
		)
	}
}

func (s *Service) audit(op string, tx *Transaction) {
	if s.auditor == nil {
		return
	}
	s.auditor.Append(fmt.Sprintf("%s account=%s tx=%s amount=%s ref=%s",
		op, tx.AccountID, tx.ID, tx.Amount.String(), tx.Reference))
}
