// Package expenses holds the owner-scoped expense operations: filtered
// listing, the trailing-window aggregates and CRUD.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

// InsightsLimit is the length of each ranking.
const InsightsLimit = 5

// MaxAmount is the largest amount the amount column can hold.
var MaxAmount = decimal.RequireFromString("999999999999.99")

const (
	MsgListed          = "Expenses fetched successfully."
	MsgNoneFound       = "No expenses found for the selected filters."
	MsgNotFound        = "No expense found with that ID."
	MsgCategoryMissing = "Expense category not found."
)

// ListResult is one page of a listing.
type ListResult struct {
	Expenses   []models.Expense `json:"expenses"`
	Total      int              `json:"totalExpenses"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
	Message    string           `json:"-"`
}

// Input is a new expense. A zero ExpenseDate means now and an empty
// TransactionType means debit.
type Input struct {
	Title           string
	CategoryID      int64
	SubCategory     string
	ExpenseDate     time.Time
	Amount          decimal.Decimal
	TransactionType models.TransactionType
	Description     string
	File            string
}

// Engine answers expense queries for one owner at a time.
type Engine struct {
	expenses   storage.ExpenseStore
	categories storage.CategoryStore
	loc        *time.Location
	now        func() time.Time
}

// NewEngine builds an engine. loc anchors the month-start default window.
func NewEngine(expenses storage.ExpenseStore, categories storage.CategoryStore, loc *time.Location, now func() time.Time) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{expenses: expenses, categories: categories, loc: loc, now: now}
}

// DefaultFrom is the start of the listing window when no startDate is given:
// the first of the current month, or the first of the previous month when
// today is the 1st.
func DefaultFrom(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	month := t.Month()
	if t.Day() == 1 {
		month--
	}
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, loc)
}

// BuildFilter turns a parsed query into the store predicate for owner.
func (e *Engine) BuildFilter(ownerID int64, q ListQuery) storage.ExpenseFilter {
	limit := q.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	page := min(max(q.Page, 1), MaxPage(limit))
	f := storage.ExpenseFilter{
		OwnerID:    ownerID,
		Deleted:    q.Deleted,
		From:       DefaultFrom(e.now(), e.loc),
		To:         q.To,
		MinAmount:  q.MinAmount,
		MaxAmount:  q.MaxAmount,
		CategoryID: q.CategoryID,
		Page:       storage.Page{Limit: limit, Offset: (page - 1) * limit},
	}
	if q.From != nil {
		f.From = *q.From
	}
	return f
}

// List returns one page of the owner's expenses and the total match count.
func (e *Engine) List(ctx context.Context, ownerID int64, q ListQuery) (ListResult, error) {
	f := e.BuildFilter(ownerID, q)
	items, total, err := e.expenses.ListExpenses(ctx, f)
	if err != nil {
		return ListResult{}, fmt.Errorf("list expenses: %w", err)
	}
	res := ListResult{
		Expenses:   items,
		Total:      total,
		Page:       f.Page.Offset/f.Page.Limit + 1,
		Limit:      f.Page.Limit,
		TotalPages: (total + f.Page.Limit - 1) / f.Page.Limit,
		Message:    MsgListed,
	}
	if res.Expenses == nil {
		res.Expenses = []models.Expense{}
	}
	if total == 0 {
		res.Message = MsgNoneFound
	}
	return res, nil
}

func (e *Engine) since(days int) time.Time {
	return e.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// Stats aggregates the owner's expenses over the trailing days.
func (e *Engine) Stats(ctx context.Context, ownerID int64, days int) (models.ExpenseStats, error) {
	stats, err := e.expenses.ExpenseStats(ctx, ownerID, e.since(days))
	if err != nil {
		return models.ExpenseStats{}, fmt.Errorf("expense stats: %w", err)
	}
	return stats, nil
}

// Insights ranks the owner's largest and smallest expenses over the
// trailing days.
func (e *Engine) Insights(ctx context.Context, ownerID int64, days int) (models.ExpenseInsights, error) {
	insights, err := e.expenses.ExpenseInsights(ctx, ownerID, e.since(days), InsightsLimit)
	if err != nil {
		return models.ExpenseInsights{}, fmt.Errorf("expense insights: %w", err)
	}
	if insights.TopExpenses == nil {
		insights.TopExpenses = []models.RankedExpense{}
	}
	if insights.LeastExpenses == nil {
		insights.LeastExpenses = []models.RankedExpense{}
	}
	return insights, nil
}

func (e *Engine) requireCategory(ctx context.Context, id int64) error {
	c, err := e.categories.FindCategory(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && c.IsDeleted) {
		return apperr.New(apperr.KindNotFound, http.StatusBadRequest, MsgCategoryMissing)
	}
	if err != nil {
		return fmt.Errorf("find category: %w", err)
	}
	return nil
}

// checkAmount enforces a positive amount with at most two decimal places
// that fits the amount column.
func checkAmount(d decimal.Decimal) error {
	switch {
	case !d.IsPositive():
		return apperr.Validation("Expense amount must be greater than zero.")
	case d.GreaterThan(MaxAmount):
		return apperr.Validation("Expense amount must not exceed " + MaxAmount.StringFixed(2) + ".")
	case !d.Equal(d.Truncate(2)):
		return apperr.Validation("Expense amount can have at most 2 decimal places.")
	}
	return nil
}

func validTransactionType(t models.TransactionType) bool {
	return t == models.Debit || t == models.Credit
}

// Create records a new expense for the owner.
func (e *Engine) Create(ctx context.Context, ownerID int64, in Input) (models.Expense, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Expense{}, apperr.Validation("Expense title is required.")
	}
	if in.CategoryID <= 0 {
		return models.Expense{}, apperr.Validation("Expense category is required.")
	}
	if err := checkAmount(in.Amount); err != nil {
		return models.Expense{}, err
	}
	if in.TransactionType == "" {
		in.TransactionType = models.Debit
	}
	if !validTransactionType(in.TransactionType) {
		return models.Expense{}, apperr.Validation("Transaction type must be credit or debit.")
	}
	if err := e.requireCategory(ctx, in.CategoryID); err != nil {
		return models.Expense{}, err
	}
	if in.ExpenseDate.IsZero() {
		in.ExpenseDate = e.now()
	}

	categoryID := in.CategoryID
	created, err := e.expenses.CreateExpense(ctx, models.Expense{
		Title:           title,
		CategoryID:      &categoryID,
		SubCategory:     strings.TrimSpace(in.SubCategory),
		ExpenseDate:     in.ExpenseDate,
		Amount:          in.Amount,
		TransactionType: in.TransactionType,
		Description:     strings.TrimSpace(in.Description),
		File:            strings.TrimSpace(in.File),
		OwnerID:         ownerID,
	})
	if err != nil {
		return models.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return created, nil
}

// Get returns one of the owner's expenses, including soft-deleted ones.
func (e *Engine) Get(ctx context.Context, ownerID, id int64) (models.Expense, error) {
	exp, err := e.expenses.FindExpense(ctx, ownerID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Expense{}, apperr.NotFound(MsgNotFound)
	}
	return exp, err
}

// Update applies a partial change to a live expense.
func (e *Engine) Update(ctx context.Context, ownerID, id int64, p models.ExpensePatch) (models.Expense, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return models.Expense{}, apperr.Validation("Expense title is required.")
		}
		p.Title = &title
	}
	if p.Amount != nil {
		if err := checkAmount(*p.Amount); err != nil {
			return models.Expense{}, err
		}
	}
	if p.TransactionType != nil && !validTransactionType(*p.TransactionType) {
		return models.Expense{}, apperr.Validation("Transaction type must be credit or debit.")
	}
	if p.CategoryID != nil {
		if err := e.requireCategory(ctx, *p.CategoryID); err != nil {
			return models.Expense{}, err
		}
	}

	exp, err := e.expenses.UpdateExpense(ctx, ownerID, id, p)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Expense{}, apperr.NotFound(MsgNotFound)
	}
	return exp, err
}

// Delete soft-deletes a live expense and returns its last state.
func (e *Engine) Delete(ctx context.Context, ownerID, id int64) (models.Expense, error) {
	exp, err := e.expenses.SoftDeleteExpense(ctx, ownerID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Expense{}, apperr.NotFound(MsgNotFound)
	}
	return exp, err
}
