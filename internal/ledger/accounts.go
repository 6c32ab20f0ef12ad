package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// AccountCache is the account lifecycle's view of the cache layer: prime the
// fresh snapshot, drop the now-stale per-user account list.
type AccountCache interface {
	PrimeAccount(ctx context.Context, account *Account)
	InvalidateUserAccounts(ctx context.Context, userID uuid.UUID)
}

// Accounts handles account creation. One account per user; the ledger proper
// assumes accounts already exist and only ever touches their balance.
type Accounts struct {
	store  AccountStore
	cache  AccountCache
	logger *slog.Logger
	now    func() time.Time
}

func NewAccounts(store AccountStore, cache AccountCache, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accounts{store: store, cache: cache, logger: logger, now: time.Now}
}

// Create opens a zero-balance account for the user in the given currency.
func (a *Accounts) Create(ctx context.Context, userID uuid.UUID, currency string) (*Account, error) {
	if !currencyPattern.MatchString(currency) {
		return nil, ErrInvalidCurrency
	}

	existing, err := a.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check existing accounts: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrAccountExists
	}

	number, err := newAccountNumber()
	if err != nil {
		return nil, fmt.Errorf("generate account number: %w", err)
	}

	account := &Account{
		ID:            uuid.New(),
		UserID:        userID,
		AccountNumber: number,
		Currency:      currency,
		Balance:       decimal.Zero,
		CreatedAt:     a.now().UTC(),
	}

	if err := a.store.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	if a.cache != nil {
		a.cache.PrimeAccount(ctx, account)
		a.cache.InvalidateUserAccounts(ctx, userID)
	}

	a.logger.Info("account created", "account_id", account.ID, "user_id", userID, "currency", currency)
	return account, nil
}

// newAccountNumber produces a 12-digit number with a non-zero leading digit.
func newAccountNumber() (string, error) {
	lead, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", err
	}
	rest, err := rand.Int(rand.Reader, new(big.Int).Exp(big.NewInt(10), big.NewInt(11), nil))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d%011d", lead.Int64()+1, rest), nil
}
