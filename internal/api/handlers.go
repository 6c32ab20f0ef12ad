package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/bankledger/internal/ledger"
)

type createAccountRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	Currency string    `json:"currency"`
}

type accountResponse struct {
	RequestID string          `json:"request_id"`
	Account   *ledger.Account `json:"account"`
}

type movementRequest struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type transferRequest struct {
	FromAccountID uuid.UUID       `json:"from_account_id"`
	ToAccountID   uuid.UUID       `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
}

type transactionResponse struct {
	RequestID   string              `json:"request_id"`
	Transaction *ledger.Transaction `json:"transaction"`
}

type transactionsResponse struct {
	RequestID    string               `json:"request_id"`
	Transactions []ledger.Transaction `json:"transactions"`
}

type balanceResponse struct {
	RequestID string          `json:"request_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

type accountsResponse struct {
	RequestID string           `json:"request_id"`
	Accounts  []ledger.Account `json:"accounts"`
}

func handleCreateAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.UserID == uuid.Nil {
			writeError(w, r, http.StatusBadRequest, "missing_user_id")
			return
		}

		account, err := deps.Accounts.Create(r.Context(), req.UserID, req.Currency)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, accountResponse{
			RequestID: RequestIDFromContext(r.Context()),
			Account:   account,
		})
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req movementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		tx, err := deps.Ledger.Deposit(r.Context(), req.AccountID, req.Amount, req.Reference)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, transactionResponse{
			RequestID:   RequestIDFromContext(r.Context()),
			Transaction: tx,
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req movementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		tx, err := deps.Ledger.Withdraw(r.Context(), req.AccountID, req.Amount, req.Reference)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, transactionResponse{
			RequestID:   RequestIDFromContext(r.Context()),
			Transaction: tx,
		})
	}
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		tx, err := deps.Ledger.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, req.Amount, req.Reference)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, transactionResponse{
			RequestID:   RequestIDFromContext(r.Context()),
			Transaction: tx,
		})
	}
}

func handleGetAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathUUID(w, r, "accountID")
		if !ok {
			return
		}

		account, err := deps.Queries.GetAccount(r.Context(), accountID)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountResponse{
			RequestID: RequestIDFromContext(r.Context()),
			Account:   account,
		})
	}
}

func handleGetBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathUUID(w, r, "accountID")
		if !ok {
			return
		}

		balance, err := deps.Queries.GetBalance(r.Context(), accountID)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, balanceResponse{
			RequestID: RequestIDFromContext(r.Context()),
			AccountID: accountID,
			Balance:   balance,
		})
	}
}

func handleGetTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathUUID(w, r, "accountID")
		if !ok {
			return
		}

		txs, err := deps.Queries.GetTransactions(r.Context(), accountID)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, transactionsResponse{
			RequestID:    RequestIDFromContext(r.Context()),
			Transactions: txs,
		})
	}
}

func handleGetStatement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := pathUUID(w, r, "accountID")
		if !ok {
			return
		}

		year, err := strconv.Atoi(chi.URLParam(r, "year"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_year")
			return
		}
		month, err := strconv.Atoi(chi.URLParam(r, "month"))
		if err != nil || month < 1 || month > 12 {
			writeError(w, r, http.StatusBadRequest, "invalid_month")
			return
		}

		txs, err := deps.Queries.GetMonthlyStatement(r.Context(), accountID, year, month)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, transactionsResponse{
			RequestID:    RequestIDFromContext(r.Context()),
			Transactions: txs,
		})
	}
}

func handleGetUserAccounts(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathUUID(w, r, "userID")
		if !ok {
			return
		}

		accounts, err := deps.Queries.GetUserAccounts(r.Context(), userID)
		if err != nil {
			writeLedgerError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountsResponse{
			RequestID: RequestIDFromContext(r.Context()),
			Accounts:  accounts,
		})
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_"+param)
		return uuid.Nil, false
	}
	return id, true
}
