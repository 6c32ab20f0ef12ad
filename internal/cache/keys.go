package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// Cache key layout. These formats are load-bearing: any process that
// populates or invalidates the cache must produce byte-identical keys.

func AccountKey(accountID uuid.UUID) string {
	return "account:" + accountID.String()
}

func BalanceKey(accountID uuid.UUID) string {
	return "balance:" + accountID.String()
}

func TransactionsKey(accountID uuid.UUID) string {
	return "transactions:" + accountID.String()
}

func UserAccountsKey(userID uuid.UUID) string {
	return "user_accounts:" + userID.String()
}

func MonthlyStatementKey(accountID uuid.UUID, year, month int) string {
	return fmt.Sprintf("monthly_statement:%s:%d:%d", accountID, year, month)
}
