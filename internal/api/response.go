package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/bankledger/internal/ledger"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, r, status, errorResponse{
		Error:     code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeLedgerError maps an error kind to a stable code so callers can tell
// "retry" (store_unavailable) from "do not retry" (everything else).
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, ledger.ErrInvalidCurrency):
		writeError(w, r, http.StatusBadRequest, "invalid_currency")
	case errors.Is(err, ledger.ErrSameAccountTransfer):
		writeError(w, r, http.StatusBadRequest, "same_account_transfer")
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, r, http.StatusNotFound, "account_not_found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, r, http.StatusUnprocessableEntity, "insufficient_funds")
	case errors.Is(err, ledger.ErrAccountExists):
		writeError(w, r, http.StatusConflict, "account_exists")
	case errors.Is(err, ledger.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
