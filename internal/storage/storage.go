package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hongminglow/expense-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrInUse indicates the record is still referenced and cannot be removed.
var ErrInUse = errors.New("record in use")

// ConflictError reports which unique field collided. It matches
// ErrAlreadyExists under errors.Is.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// UserStore captures persistence operations for accounts. Only the *Auth*
// lookups return secrets; everything else returns the public projection and
// skips soft-deleted users.
type UserStore interface {
	CreateUser(ctx context.Context, user models.NewUser) (models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindAuthByID(ctx context.Context, id int64) (models.AuthRecord, error)
	FindAuthByIdentifier(ctx context.Context, identifier string) (models.AuthRecord, error)
	FindAuthByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.AuthRecord, error)
	ListUsers(ctx context.Context, page Page) ([]models.User, int, error)
	SetRefreshToken(ctx context.Context, id int64, token string) error
	SetResetToken(ctx context.Context, id int64, tokenHash string, expires time.Time) error
	ClearResetToken(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error
	// ConsumeResetToken sets the password only while the user still holds
	// the unexpired token hash, clearing it in the same step. ErrNotFound
	// means the token was already used or has expired.
	ConsumeResetToken(ctx context.Context, id int64, tokenHash string, now time.Time, passwordHash string, changedAt time.Time) error
	AssignRole(ctx context.Context, id, roleID int64) (models.User, error)
	UpdateImages(ctx context.Context, id int64, images models.ProfileImages) (models.User, error)
	SoftDeleteUser(ctx context.Context, id int64) (models.User, error)
}

// RoleStore persists roles.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	FindRole(ctx context.Context, id int64) (models.Role, error)
	FindRoleByName(ctx context.Context, name models.RoleName) (models.Role, error)
	CreateRole(ctx context.Context, role models.Role) (models.Role, error)
	UpdateRole(ctx context.Context, role models.Role) (models.Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// CategoryStore persists expense categories.
type CategoryStore interface {
	ListCategories(ctx context.Context, deleted bool) ([]models.ExpenseCategory, error)
	// FindCategory returns the category even when soft-deleted.
	FindCategory(ctx context.Context, id int64) (models.ExpenseCategory, error)
	CreateCategory(ctx context.Context, name string) (models.ExpenseCategory, error)
	RenameCategory(ctx context.Context, id int64, name string) (models.ExpenseCategory, error)
	SoftDeleteCategory(ctx context.Context, id int64) (models.ExpenseCategory, error)
}

// ExpenseStore persists expenses and answers the aggregate queries.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense models.Expense) (models.Expense, error)
	// FindExpense returns the owner's expense even when soft-deleted.
	FindExpense(ctx context.Context, ownerID, id int64) (models.Expense, error)
	UpdateExpense(ctx context.Context, ownerID, id int64, patch models.ExpensePatch) (models.Expense, error)
	SoftDeleteExpense(ctx context.Context, ownerID, id int64) (models.Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, int, error)
	ExpenseStats(ctx context.Context, ownerID int64, since time.Time) (models.ExpenseStats, error)
	ExpenseInsights(ctx context.Context, ownerID int64, since time.Time, limit int) (models.ExpenseInsights, error)
}

// Store bundles every persistence interface.
type Store interface {
	UserStore
	RoleStore
	CategoryStore
	ExpenseStore
}
