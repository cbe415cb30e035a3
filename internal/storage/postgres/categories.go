package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/expense-be/internal/models"
)

const categoryColumns = `id, name, is_deleted, created_at, updated_at`

func scanCategory(row pgx.Row) (models.ExpenseCategory, error) {
	var c models.ExpenseCategory
	if err := row.Scan(&c.ID, &c.Name, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.ExpenseCategory{}, mapErr(err)
	}
	return c, nil
}

// ListCategories returns live or soft-deleted categories ordered by name.
func (s *Store) ListCategories(ctx context.Context, deleted bool) ([]models.ExpenseCategory, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+categoryColumns+` FROM expense_categories WHERE is_deleted = $1 ORDER BY name`, deleted)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	categories := []models.ExpenseCategory{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, mapErr(rows.Err())
}

// FindCategory fetches a category by id, deleted or not.
func (s *Store) FindCategory(ctx context.Context, id int64) (models.ExpenseCategory, error) {
	return scanCategory(s.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM expense_categories WHERE id = $1`, id))
}

// CreateCategory inserts a category with a unique name.
func (s *Store) CreateCategory(ctx context.Context, name string) (models.ExpenseCategory, error) {
	return scanCategory(s.db.QueryRow(ctx,
		`INSERT INTO expense_categories (name) VALUES ($1) RETURNING `+categoryColumns, name))
}

// RenameCategory changes a category name.
func (s *Store) RenameCategory(ctx context.Context, id int64, name string) (models.ExpenseCategory, error) {
	return scanCategory(s.db.QueryRow(ctx,
		`UPDATE expense_categories SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+categoryColumns,
		id, name))
}

// SoftDeleteCategory flags a category deleted and returns its last state.
func (s *Store) SoftDeleteCategory(ctx context.Context, id int64) (models.ExpenseCategory, error) {
	return scanCategory(s.db.QueryRow(ctx,
		`UPDATE expense_categories SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 RETURNING `+categoryColumns,
		id))
}
