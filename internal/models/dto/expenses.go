package dto

import (
	"github.com/shopspring/decimal"

	"github.com/hongminglow/expense-be/internal/models"
)

type CreateExpenseRequest struct {
	Title           string           `json:"title" validate:"required,max=200"`
	ExpenseCategory int64            `json:"expenseCategory" validate:"required,gt=0"`
	SubCategory     string           `json:"expenseSubCategory" validate:"max=100"`
	ExpenseDate     string           `json:"expenseDate"`
	Amount          *decimal.Decimal `json:"expenseAmount" validate:"required"`
	TransactionType string           `json:"transactionType" validate:"omitempty,oneof=credit debit"`
	Description     string           `json:"expenseDescription" validate:"max=1000"`
	File            string           `json:"file" validate:"max=500"`
}

// UpdateExpenseRequest is a partial update; absent fields stay unchanged.
type UpdateExpenseRequest struct {
	Title           *string          `json:"title" validate:"omitempty,max=200"`
	ExpenseCategory *int64           `json:"expenseCategory" validate:"omitempty,gt=0"`
	SubCategory     *string          `json:"expenseSubCategory" validate:"omitempty,max=100"`
	ExpenseDate     *string          `json:"expenseDate"`
	Amount          *decimal.Decimal `json:"expenseAmount"`
	TransactionType *string          `json:"transactionType" validate:"omitempty,oneof=credit debit"`
	Description     *string          `json:"expenseDescription" validate:"omitempty,max=1000"`
	File            *string          `json:"file" validate:"omitempty,max=500"`
}

type ExpenseResponse struct {
	Expense models.Expense `json:"expense"`
}
