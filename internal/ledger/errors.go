package ledger

import "errors"

// Error kinds surfaced by the ledger. Callers classify with errors.Is; only
// ErrStoreUnavailable is worth retrying.
var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSameAccountTransfer = errors.New("transfer source and destination are the same account")
	ErrAccountExists       = errors.New("user already has an account")
	ErrInvalidCurrency     = errors.New("currency must be a 3-letter ISO 4217 code")
	ErrStoreUnavailable    = errors.New("store unavailable")
)
