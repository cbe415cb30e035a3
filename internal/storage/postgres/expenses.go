package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

const expenseColumns = `e.id, e.title, e.category_id, c.name, e.sub_category, e.expense_date,
	e.amount, e.transaction_type, e.description, e.file, e.owner_id, e.is_deleted,
	e.created_at, e.updated_at`

const expenseJoin = `LEFT JOIN expense_categories c ON c.id = e.category_id`

func scanExpense(row pgx.Row) (models.Expense, error) {
	var e models.Expense
	var categoryName *string
	err := row.Scan(&e.ID, &e.Title, &e.CategoryID, &categoryName, &e.SubCategory, &e.ExpenseDate,
		&e.Amount, &e.TransactionType, &e.Description, &e.File, &e.OwnerID, &e.IsDeleted,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return models.Expense{}, mapErr(err)
	}
	if e.CategoryID != nil && categoryName != nil {
		e.Category = &models.CategoryRef{ID: *e.CategoryID, Name: *categoryName}
	}
	return e, nil
}

// CreateExpense inserts an expense; a zero date means now.
func (s *Store) CreateExpense(ctx context.Context, in models.Expense) (models.Expense, error) {
	var date *time.Time
	if !in.ExpenseDate.IsZero() {
		date = &in.ExpenseDate
	}
	query := `
		WITH e AS (
			INSERT INTO expenses (title, category_id, sub_category, expense_date, amount,
				transaction_type, description, file, owner_id)
			VALUES ($1, $2, $3, COALESCE($4, NOW()), $5, COALESCE(NULLIF($6, ''), 'debit'), $7, $8, $9)
			RETURNING *
		)
		SELECT ` + expenseColumns + ` FROM e ` + expenseJoin
	row := s.db.QueryRow(ctx, query, in.Title, in.CategoryID, in.SubCategory, date, in.Amount,
		string(in.TransactionType), in.Description, in.File, in.OwnerID)
	return scanExpense(row)
}

// FindExpense fetches one of the owner's expenses, deleted or not.
func (s *Store) FindExpense(ctx context.Context, ownerID, id int64) (models.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses e ` + expenseJoin +
		` WHERE e.id = $1 AND e.owner_id = $2`
	return scanExpense(s.db.QueryRow(ctx, query, id, ownerID))
}

// UpdateExpense applies the non-nil patch fields to a live expense.
func (s *Store) UpdateExpense(ctx context.Context, ownerID, id int64, p models.ExpensePatch) (models.Expense, error) {
	args := []any{id, ownerID}
	sets := []string{"updated_at = NOW()"}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.CategoryID != nil {
		set("category_id", *p.CategoryID)
	}
	if p.SubCategory != nil {
		set("sub_category", *p.SubCategory)
	}
	if p.ExpenseDate != nil {
		set("expense_date", *p.ExpenseDate)
	}
	if p.Amount != nil {
		set("amount", *p.Amount)
	}
	if p.TransactionType != nil {
		set("transaction_type", string(*p.TransactionType))
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.File != nil {
		set("file", *p.File)
	}

	query := `
		WITH e AS (
			UPDATE expenses SET ` + strings.Join(sets, ", ") + `
			WHERE id = $1 AND owner_id = $2 AND NOT is_deleted
			RETURNING *
		)
		SELECT ` + expenseColumns + ` FROM e ` + expenseJoin
	return scanExpense(s.db.QueryRow(ctx, query, args...))
}

// SoftDeleteExpense flags a live expense deleted and returns its last state.
func (s *Store) SoftDeleteExpense(ctx context.Context, ownerID, id int64) (models.Expense, error) {
	query := `
		WITH e AS (
			UPDATE expenses SET is_deleted = TRUE, updated_at = NOW()
			WHERE id = $1 AND owner_id = $2 AND NOT is_deleted
			RETURNING *
		)
		SELECT ` + expenseColumns + ` FROM e ` + expenseJoin
	return scanExpense(s.db.QueryRow(ctx, query, id, ownerID))
}

// filterClause renders the filter as a WHERE clause over alias e.
func filterClause(f storage.ExpenseFilter) (string, []any) {
	args := []any{f.OwnerID, f.Deleted, f.From}
	conds := []string{"e.owner_id = $1", "e.is_deleted = $2", "e.expense_date >= $3"}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.To != nil {
		add("e.expense_date <= $%d", *f.To)
	}
	if f.MinAmount != nil {
		add("e.amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("e.amount <= $%d", *f.MaxAmount)
	}
	if f.CategoryID != nil {
		add("e.category_id = $%d", *f.CategoryID)
	}
	return strings.Join(conds, " AND "), args
}

// ListExpenses returns the filtered page and a separately counted total.
func (s *Store) ListExpenses(ctx context.Context, f storage.ExpenseFilter) ([]models.Expense, int, error) {
	where, args := filterClause(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM expenses e WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM expenses e %s WHERE %s
		ORDER BY e.expense_date DESC, e.id DESC LIMIT $%d OFFSET $%d`,
		expenseColumns, expenseJoin, where, n+1, n+2)
	rows, err := s.db.Query(ctx, query, append(args, limitArg(f.Page), f.Page.Offset)...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, e)
	}
	return expenses, total, mapErr(rows.Err())
}

// ExpenseStats aggregates the owner's live expenses since the given instant
// into one bucket. An empty window yields zeros.
func (s *Store) ExpenseStats(ctx context.Context, ownerID int64, since time.Time) (models.ExpenseStats, error) {
	var stats models.ExpenseStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COALESCE(ROUND(AVG(amount), 2), 0)
		FROM expenses
		WHERE owner_id = $1 AND NOT is_deleted AND expense_date >= $2`,
		ownerID, since).Scan(&stats.TotalExpenses, &stats.TotalExpenditure, &stats.AverageExpenditure)
	if err != nil {
		return models.ExpenseStats{}, mapErr(err)
	}
	return stats, nil
}

// ExpenseInsights ranks the window both ways in a single query.
func (s *Store) ExpenseInsights(ctx context.Context, ownerID int64, since time.Time, limit int) (models.ExpenseInsights, error) {
	const query = `
		WITH windowed AS (
			SELECT e.id, e.title, e.amount, e.expense_date, c.id AS category_id, c.name AS category_name,
				ROW_NUMBER() OVER (ORDER BY e.amount DESC, e.expense_date DESC, e.id DESC) AS top_rank,
				ROW_NUMBER() OVER (ORDER BY e.amount ASC, e.expense_date DESC, e.id DESC) AS least_rank
			FROM expenses e
			LEFT JOIN expense_categories c ON c.id = e.category_id
			WHERE e.owner_id = $1 AND NOT e.is_deleted AND e.expense_date >= $2
		)
		SELECT 'top' AS bucket, top_rank AS rank, id, title, amount, expense_date, category_id, category_name
		FROM windowed WHERE top_rank <= $3
		UNION ALL
		SELECT 'least', least_rank, id, title, amount, expense_date, category_id, category_name
		FROM windowed WHERE least_rank <= $3
		ORDER BY bucket, rank`
	rows, err := s.db.Query(ctx, query, ownerID, since, limit)
	if err != nil {
		return models.ExpenseInsights{}, mapErr(err)
	}
	defer rows.Close()

	insights := models.ExpenseInsights{
		TopExpenses:   []models.RankedExpense{},
		LeastExpenses: []models.RankedExpense{},
	}
	for rows.Next() {
		var (
			bucket       string
			rank         int64
			r            models.RankedExpense
			categoryID   *int64
			categoryName *string
		)
		if err := rows.Scan(&bucket, &rank, &r.ID, &r.Title, &r.Amount, &r.ExpenseDate, &categoryID, &categoryName); err != nil {
			return models.ExpenseInsights{}, mapErr(err)
		}
		if categoryID != nil && categoryName != nil {
			r.Category = &models.CategoryRef{ID: *categoryID, Name: *categoryName}
		}
		if bucket == "top" {
			insights.TopExpenses = append(insights.TopExpenses, r)
		} else {
			insights.LeastExpenses = append(insights.LeastExpenses, r)
		}
	}
	return insights, mapErr(rows.Err())
}
