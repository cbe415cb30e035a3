package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/expense-be/internal/models"
)

// ExpenseFilter is the predicate behind an expense listing. OwnerID is always
// set by the caller from the authenticated identity.
type ExpenseFilter struct {
	OwnerID    int64
	Deleted    bool
	From       time.Time
	To         *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	CategoryID *int64
	Page       Page
}

// Match evaluates the filter against a single expense. SQL backends translate
// the same predicate; in-memory backends call Match directly.
func (f ExpenseFilter) Match(e models.Expense) bool {
	if e.OwnerID != f.OwnerID || e.IsDeleted != f.Deleted {
		return false
	}
	if e.ExpenseDate.Before(f.From) {
		return false
	}
	if f.To != nil && e.ExpenseDate.After(*f.To) {
		return false
	}
	if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
		return false
	}
	return true
}
