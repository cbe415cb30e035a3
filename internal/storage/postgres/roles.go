package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

const roleColumns = `id, name, type, created_at, updated_at`

func scanRole(row pgx.Row) (models.Role, error) {
	var r models.Role
	if err := row.Scan(&r.ID, &r.Name, &r.Type, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Role{}, mapErr(err)
	}
	return r, nil
}

// ListRoles returns every role ordered by id.
func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, mapErr(rows.Err())
}

// FindRole fetches a role by id.
func (s *Store) FindRole(ctx context.Context, id int64) (models.Role, error) {
	return scanRole(s.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// FindRoleByName fetches a role by its unique name.
func (s *Store) FindRoleByName(ctx context.Context, name models.RoleName) (models.Role, error) {
	return scanRole(s.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a role with a unique name.
func (s *Store) CreateRole(ctx context.Context, role models.Role) (models.Role, error) {
	return scanRole(s.db.QueryRow(ctx,
		`INSERT INTO roles (name, type) VALUES ($1, $2) RETURNING `+roleColumns,
		role.Name, role.Type))
}

// UpdateRole renames or retypes a role.
func (s *Store) UpdateRole(ctx context.Context, role models.Role) (models.Role, error) {
	return scanRole(s.db.QueryRow(ctx,
		`UPDATE roles SET name = $2, type = $3, updated_at = NOW() WHERE id = $1 RETURNING `+roleColumns,
		role.ID, role.Name, role.Type))
}

// DeleteRole removes a role; users still referencing it yield ErrInUse.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
