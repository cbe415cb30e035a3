package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are emitted as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// TransactionType is the direction of money movement.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// ExpenseCategory groups expenses. Names are unique and stored upper case.
type ExpenseCategory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CategoryRef is the joined category projection attached to an expense.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Expense is a single money movement owned by one user.
type Expense struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	CategoryID      *int64          `json:"-"`
	Category        *CategoryRef    `json:"expenseCategory"`
	SubCategory     string          `json:"expenseSubCategory,omitempty"`
	ExpenseDate     time.Time       `json:"expenseDate"`
	Amount          decimal.Decimal `json:"expenseAmount"`
	TransactionType TransactionType `json:"transactionType"`
	Description     string          `json:"expenseDescription,omitempty"`
	File            string          `json:"file,omitempty"`
	OwnerID         int64           `json:"-"`
	IsDeleted       bool            `json:"isDeleted"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ExpensePatch carries the optional fields of a partial update.
type ExpensePatch struct {
	Title           *string
	CategoryID      *int64
	SubCategory     *string
	ExpenseDate     *time.Time
	Amount          *decimal.Decimal
	TransactionType *TransactionType
	Description     *string
	File            *string
}

// ExpenseStats is the single-bucket aggregate over a window.
type ExpenseStats struct {
	TotalExpenses      int64           `json:"totalExpenses"`
	TotalExpenditure   decimal.Decimal `json:"totalExpenditure"`
	AverageExpenditure decimal.Decimal `json:"averageExpenditure"`
}

// RankedExpense is the projection used by the top/least rankings.
type RankedExpense struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"expenseAmount"`
	ExpenseDate time.Time       `json:"expenseDate"`
	Category    *CategoryRef    `json:"expenseCategory,omitempty"`
}

// ExpenseInsights holds both rankings computed over the same window.
type ExpenseInsights struct {
	TopExpenses   []RankedExpense `json:"topExpenses"`
	LeastExpenses []RankedExpense `json:"leastExpenses"`
}
