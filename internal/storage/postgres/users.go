package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

const userColumns = `u.id, u.first_name, u.last_name, u.username, u.email, u.phone,
	u.is_verified, u.image_small, u.image_medium, u.image_large, u.is_deleted,
	u.created_at, u.updated_at, r.id, r.name, r.type, r.created_at, r.updated_at`

const secretColumns = `u.password_hash, u.password_changed_at, u.refresh_token,
	u.reset_token_hash, u.reset_token_expires`

const userJoin = `LEFT JOIN roles r ON r.id = u.role_id`

func userTargets(u *models.User, role *nullableRole) []any {
	return []any{
		&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &u.Phone,
		&u.IsVerified, &u.Images.Small, &u.Images.Medium, &u.Images.Large, &u.IsDeleted,
		&u.CreatedAt, &u.UpdatedAt, &role.id, &role.name, &role.typ, &role.createdAt, &role.updatedAt,
	}
}

type nullableRole struct {
	id        *int64
	name      *string
	typ       *string
	createdAt *time.Time
	updatedAt *time.Time
}

func (n nullableRole) role() *models.Role {
	if n.id == nil {
		return nil
	}
	r := &models.Role{ID: *n.id}
	if n.name != nil {
		r.Name = models.RoleName(*n.name)
	}
	if n.typ != nil {
		r.Type = models.RoleType(*n.typ)
	}
	if n.createdAt != nil {
		r.CreatedAt = *n.createdAt
	}
	if n.updatedAt != nil {
		r.UpdatedAt = *n.updatedAt
	}
	return r
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var role nullableRole
	if err := row.Scan(userTargets(&u, &role)...); err != nil {
		return models.User{}, mapErr(err)
	}
	u.Role = role.role()
	return u, nil
}

func scanAuth(row pgx.Row) (models.AuthRecord, error) {
	var rec models.AuthRecord
	var role nullableRole
	targets := append(userTargets(&rec.User, &role),
		&rec.Secrets.PasswordHash, &rec.Secrets.PasswordChangedAt, &rec.Secrets.RefreshToken,
		&rec.Secrets.ResetTokenHash, &rec.Secrets.ResetTokenExpires)
	if err := row.Scan(targets...); err != nil {
		return models.AuthRecord{}, mapErr(err)
	}
	rec.User.Role = role.role()
	return rec, nil
}

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, in models.NewUser) (models.User, error) {
	query := `
		WITH u AS (
			INSERT INTO users (first_name, last_name, username, email, phone, role_id, password_hash, is_verified)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM u ` + userJoin
	row := s.db.QueryRow(ctx, query, in.FirstName, in.LastName, in.Username, in.Email, in.Phone,
		in.RoleID, in.PasswordHash, in.IsVerified)
	return scanUser(row)
}

// ExistsByUsernameOrEmail checks every account, deleted ones included.
func (s *Store) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
		username, email).Scan(&exists)
	return exists, mapErr(err)
}

// FindByID fetches a live user.
func (s *Store) FindByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u ` + userJoin + ` WHERE u.id = $1 AND NOT u.is_deleted`
	return scanUser(s.db.QueryRow(ctx, query, id))
}

// FindAuthByID fetches a live user with secrets.
func (s *Store) FindAuthByID(ctx context.Context, id int64) (models.AuthRecord, error) {
	query := `SELECT ` + userColumns + `, ` + secretColumns + ` FROM users u ` + userJoin +
		` WHERE u.id = $1 AND NOT u.is_deleted`
	return scanAuth(s.db.QueryRow(ctx, query, id))
}

// FindAuthByIdentifier matches the identifier against username or email.
func (s *Store) FindAuthByIdentifier(ctx context.Context, identifier string) (models.AuthRecord, error) {
	query := `SELECT ` + userColumns + `, ` + secretColumns + ` FROM users u ` + userJoin +
		` WHERE (u.username = $1 OR u.email = $1) AND NOT u.is_deleted ORDER BY u.id LIMIT 1`
	return scanAuth(s.db.QueryRow(ctx, query, identifier))
}

// FindAuthByResetToken finds the user holding an unexpired reset token hash.
func (s *Store) FindAuthByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.AuthRecord, error) {
	if tokenHash == "" {
		return models.AuthRecord{}, storage.ErrNotFound
	}
	query := `SELECT ` + userColumns + `, ` + secretColumns + ` FROM users u ` + userJoin +
		` WHERE u.reset_token_hash = $1 AND u.reset_token_expires > $2 AND NOT u.is_deleted LIMIT 1`
	return scanAuth(s.db.QueryRow(ctx, query, tokenHash, now))
}

// ListUsers pages through live users ordered by id.
func (s *Store) ListUsers(ctx context.Context, page storage.Page) ([]models.User, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE NOT is_deleted`).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	query := `SELECT ` + userColumns + ` FROM users u ` + userJoin +
		` WHERE NOT u.is_deleted ORDER BY u.id LIMIT $1 OFFSET $2`
	rows, err := s.db.Query(ctx, query, limitArg(page), page.Offset)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, mapErr(rows.Err())
}

func (s *Store) execUser(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// updateUserReturning runs an UPDATE on a live user and returns the joined row.
func (s *Store) updateUserReturning(ctx context.Context, set string, args ...any) (models.User, error) {
	query := `
		WITH u AS (
			UPDATE users SET ` + set + `, updated_at = NOW()
			WHERE id = $1 AND NOT is_deleted
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM u ` + userJoin
	return scanUser(s.db.QueryRow(ctx, query, args...))
}

// SetRefreshToken overwrites the single active refresh token; "" clears it.
func (s *Store) SetRefreshToken(ctx context.Context, id int64, token string) error {
	return s.execUser(ctx,
		`UPDATE users SET refresh_token = $2, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`,
		id, token)
}

// SetResetToken stores the reset token hash and its expiry.
func (s *Store) SetResetToken(ctx context.Context, id int64, tokenHash string, expires time.Time) error {
	return s.execUser(ctx,
		`UPDATE users SET reset_token_hash = $2, reset_token_expires = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`,
		id, tokenHash, expires)
}

// ClearResetToken removes any pending reset token.
func (s *Store) ClearResetToken(ctx context.Context, id int64) error {
	return s.execUser(ctx,
		`UPDATE users SET reset_token_hash = '', reset_token_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`,
		id)
}

// UpdatePassword replaces the hash, stamps the change time and consumes any
// reset token.
func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error {
	return s.execUser(ctx,
		`UPDATE users SET password_hash = $2, password_changed_at = $3,
			reset_token_hash = '', reset_token_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted`,
		id, passwordHash, changedAt)
}

// ConsumeResetToken swaps in the new hash only while the token is still
// pending and unexpired.
func (s *Store) ConsumeResetToken(ctx context.Context, id int64, tokenHash string, now time.Time, passwordHash string, changedAt time.Time) error {
	return s.execUser(ctx,
		`UPDATE users SET password_hash = $4, password_changed_at = $5,
			reset_token_hash = '', reset_token_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND reset_token_hash = $2 AND reset_token_hash <> ''
			AND reset_token_expires > $3 AND NOT is_deleted`,
		id, tokenHash, now, passwordHash, changedAt)
}

// AssignRole assigns an existing role by id.
func (s *Store) AssignRole(ctx context.Context, id, roleID int64) (models.User, error) {
	query := `
		WITH u AS (
			UPDATE users SET role_id = $2, updated_at = NOW()
			WHERE id = $1 AND NOT is_deleted AND EXISTS (SELECT 1 FROM roles WHERE id = $2)
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM u ` + userJoin
	return scanUser(s.db.QueryRow(ctx, query, id, roleID))
}

// UpdateImages stores new avatar URLs.
func (s *Store) UpdateImages(ctx context.Context, id int64, images models.ProfileImages) (models.User, error) {
	return s.updateUserReturning(ctx,
		`image_small = $2, image_medium = $3, image_large = $4`,
		id, images.Small, images.Medium, images.Large)
}

// SoftDeleteUser flags the user deleted, drops its session and returns the
// last state.
func (s *Store) SoftDeleteUser(ctx context.Context, id int64) (models.User, error) {
	return s.updateUserReturning(ctx, `is_deleted = TRUE, refresh_token = ''`, id)
}
