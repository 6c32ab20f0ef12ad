package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/internal/ledger"
)

// Dependencies are the collaborators the HTTP surface calls into. The
// interfaces are declared here, consumer side, so tests can swap fakes in.
type Dependencies struct {
	Logger *slog.Logger

	Ledger interface {
		Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) (*ledger.Transaction, error)
		Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, reference string) (*ledger.Transaction, error)
		Transfer(ctx context.Context, fromAccountID, toAccountID uuid.UUID, amount decimal.Decimal, reference string) (*ledger.Transaction, error)
	}

	Accounts interface {
		Create(ctx context.Context, userID uuid.UUID, currency string) (*ledger.Account, error)
	}

	Queries interface {
		GetAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Account, error)
		GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
		GetUserAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
		GetTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error)
		GetMonthlyStatement(ctx context.Context, accountID uuid.UUID, year, month int) ([]ledger.Transaction, error)
	}

	Auditor   Auditor
	RateLimit RateLimiter

	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger(deps.Logger))
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}
	if deps.RateLimit != nil {
		r.Use(RateLimitMiddleware(deps.RateLimit, nil))
	}
	if deps.MaxBodyBytes > 0 {
		r.Use(bodySizeLimit(deps.MaxBodyBytes))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", handleCreateAccount(deps))
			r.Get("/{accountID}", handleGetAccount(deps))
			r.Get("/{accountID}/balance", handleGetBalance(deps))
			r.Get("/{accountID}/transactions", handleGetTransactions(deps))
			r.Get("/{accountID}/statements/{year}/{month}", handleGetStatement(deps))
		})

		r.Get("/users/{userID}/accounts", handleGetUserAccounts(deps))

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/deposit", handleDeposit(deps))
			r.Post("/withdraw", handleWithdraw(deps))
			r.Post("/transfer", handleTransfer(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r
}

func bodySizeLimit(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
