package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/bankledger/internal/ledger"
)

// Store is a generic TTL key-value cache. Every method may fail without
// consequence for correctness; the coordinator logs and moves on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
}

// TTLOptions fixes the expiration policy at construction time. Short covers
// volatile views (balances, current-month statements), Long covers views
// that can no longer change (statements for closed months).
type TTLOptions struct {
	Default time.Duration
	Short   time.Duration
	Long    time.Duration
}

func (o TTLOptions) withDefaults() TTLOptions {
	if o.Default <= 0 {
		o.Default = 30 * time.Minute
	}
	if o.Short <= 0 {
		o.Short = 5 * time.Minute
	}
	if o.Long <= 0 {
		o.Long = 24 * time.Hour
	}
	return o
}

// Coordinator keeps cached read views consistent with the ledger: reads go
// through ReadThrough, and every successful mutation fans out to
// InvalidateAccount. The cache is a projection, never an authority.
type Coordinator struct {
	store  Store
	ttl    TTLOptions
	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator(store Store, ttl TTLOptions, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:  store,
		ttl:    ttl.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Options returns the TTL policy the coordinator was built with.
func (c *Coordinator) Options() TTLOptions {
	return c.ttl
}

// StatementTTL picks the expiration for a monthly statement: statements for
// months strictly in the past are immutable and cache long, the current
// month keeps moving and caches short.
func (c *Coordinator) StatementTTL(year, month int) time.Duration {
	now := c.now().UTC()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return c.ttl.Long
	}
	return c.ttl.Short
}

// ReadThrough serves key from the cache when present, otherwise invokes load
// and caches its result under ttl. Cache failures on either side are logged
// and swallowed; the loader's result always reaches the caller.
func ReadThrough[T any](ctx context.Context, c *Coordinator, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.Warn("cache entry undecodable, reloading", "key", key, "error", err)
		} else {
			return v, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.put(ctx, key, v, ttl)
	return v, nil
}

func (c *Coordinator) put(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// InvalidateAccount removes every cached view a mutation of accountID could
// have made stale. Called unconditionally after each successful ledger
// mutation; for a transfer, once per side.
func (c *Coordinator) InvalidateAccount(ctx context.Context, accountID, userID uuid.UUID) {
	now := c.now().UTC()
	keys := []string{
		AccountKey(accountID),
		BalanceKey(accountID),
		TransactionsKey(accountID),
		UserAccountsKey(userID),
		MonthlyStatementKey(accountID, now.Year(), int(now.Month())),
	}
	if err := c.store.Remove(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidation failed", "account_id", accountID, "error", err)
	}
}

// InvalidateUserAccounts drops the per-user account list.
func (c *Coordinator) InvalidateUserAccounts(ctx context.Context, userID uuid.UUID) {
	if err := c.store.Remove(ctx, UserAccountsKey(userID)); err != nil {
		c.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
	}
}

// PrimeAccount writes a freshly created account snapshot so the first read
// after creation does not miss.
func (c *Coordinator) PrimeAccount(ctx context.Context, account *ledger.Account) {
	c.put(ctx, AccountKey(account.ID), account, c.ttl.Short)
}
