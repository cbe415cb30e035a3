// Package memory is an in-process implementation of the storage interfaces.
// It backs the service and handler tests and mirrors the Postgres semantics.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

type userRow struct {
	user    models.User
	roleID  *int64
	secrets models.UserSecrets
}

// Store keeps every collection in maps guarded by one lock.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	users      map[int64]*userRow
	roles      map[int64]models.Role
	categories map[int64]models.ExpenseCategory
	expenses   map[int64]models.Expense
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[int64]*userRow),
		roles:      make(map[int64]models.Role),
		categories: make(map[int64]models.ExpenseCategory),
		expenses:   make(map[int64]models.Expense),
	}
}

// NewSeeded returns a store holding the default roles.
func NewSeeded() *Store {
	s := New()
	for _, role := range models.DefaultRoles {
		_, _ = s.CreateRole(context.Background(), role)
	}
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// hydrate attaches the referenced role. Callers hold the lock.
func (s *Store) hydrate(row *userRow) models.User {
	u := row.user
	u.Role = nil
	if row.roleID != nil {
		if role, ok := s.roles[*row.roleID]; ok {
			r := role
			u.Role = &r
		}
	}
	return u
}

func (s *Store) authRecord(row *userRow) models.AuthRecord {
	return models.AuthRecord{User: s.hydrate(row), Secrets: row.secrets}
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(_ context.Context, in models.NewUser) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.users {
		if row.user.Username == in.Username {
			return models.User{}, &storage.ConflictError{Field: "username"}
		}
		if row.user.Email == in.Email {
			return models.User{}, &storage.ConflictError{Field: "email"}
		}
	}
	now := time.Now()
	row := &userRow{
		user: models.User{
			ID:         s.id(),
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			Username:   in.Username,
			Email:      in.Email,
			Phone:      in.Phone,
			IsVerified: in.IsVerified,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		roleID:  in.RoleID,
		secrets: models.UserSecrets{PasswordHash: in.PasswordHash},
	}
	s.users[row.user.ID] = row
	return s.hydrate(row), nil
}

// ExistsByUsernameOrEmail checks every account, deleted ones included, since
// the unique constraints cover them too.
func (s *Store) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.users {
		if row.user.Username == username || row.user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) activeUser(id int64) (*userRow, error) {
	row, ok := s.users[id]
	if !ok || row.user.IsDeleted {
		return nil, storage.ErrNotFound
	}
	return row, nil
}

// FindByID fetches a live user.
func (s *Store) FindByID(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, err := s.activeUser(id)
	if err != nil {
		return models.User{}, err
	}
	return s.hydrate(row), nil
}

// FindAuthByID fetches a live user with secrets.
func (s *Store) FindAuthByID(_ context.Context, id int64) (models.AuthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, err := s.activeUser(id)
	if err != nil {
		return models.AuthRecord{}, err
	}
	return s.authRecord(row), nil
}

// FindAuthByIdentifier matches the identifier against username or email.
func (s *Store) FindAuthByIdentifier(_ context.Context, identifier string) (models.AuthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.sortedUsers() {
		if row.user.IsDeleted {
			continue
		}
		if row.user.Username == identifier || row.user.Email == identifier {
			return s.authRecord(row), nil
		}
	}
	return models.AuthRecord{}, storage.ErrNotFound
}

// FindAuthByResetToken finds the user holding an unexpired reset token hash.
func (s *Store) FindAuthByResetToken(_ context.Context, tokenHash string, now time.Time) (models.AuthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tokenHash == "" {
		return models.AuthRecord{}, storage.ErrNotFound
	}
	for _, row := range s.users {
		sec := row.secrets
		if row.user.IsDeleted || sec.ResetTokenHash != tokenHash || sec.ResetTokenExpires == nil {
			continue
		}
		if sec.ResetTokenExpires.After(now) {
			return s.authRecord(row), nil
		}
	}
	return models.AuthRecord{}, storage.ErrNotFound
}

func (s *Store) sortedUsers() []*userRow {
	rows := make([]*userRow, 0, len(s.users))
	for _, row := range s.users {
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b *userRow) int { return cmp.Compare(a.user.ID, b.user.ID) })
	return rows
}

// ListUsers pages through live users ordered by id.
func (s *Store) ListUsers(_ context.Context, page storage.Page) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.User
	for _, row := range s.sortedUsers() {
		if !row.user.IsDeleted {
			all = append(all, s.hydrate(row))
		}
	}
	return paginate(all, page), len(all), nil
}

func (s *Store) mutateUser(id int64, fn func(row *userRow)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.activeUser(id)
	if err != nil {
		return models.User{}, err
	}
	fn(row)
	row.user.UpdatedAt = time.Now()
	return s.hydrate(row), nil
}

// SetRefreshToken overwrites the single active refresh token; "" clears it.
func (s *Store) SetRefreshToken(_ context.Context, id int64, token string) error {
	_, err := s.mutateUser(id, func(row *userRow) { row.secrets.RefreshToken = token })
	return err
}

// SetResetToken stores the reset token hash and its expiry.
func (s *Store) SetResetToken(_ context.Context, id int64, tokenHash string, expires time.Time) error {
	_, err := s.mutateUser(id, func(row *userRow) {
		row.secrets.ResetTokenHash = tokenHash
		row.secrets.ResetTokenExpires = &expires
	})
	return err
}

// ClearResetToken removes any pending reset token.
func (s *Store) ClearResetToken(_ context.Context, id int64) error {
	_, err := s.mutateUser(id, func(row *userRow) {
		row.secrets.ResetTokenHash = ""
		row.secrets.ResetTokenExpires = nil
	})
	return err
}

// UpdatePassword replaces the hash, stamps the change time and consumes any
// reset token.
func (s *Store) UpdatePassword(_ context.Context, id int64, passwordHash string, changedAt time.Time) error {
	_, err := s.mutateUser(id, func(row *userRow) {
		row.secrets.PasswordHash = passwordHash
		row.secrets.PasswordChangedAt = &changedAt
		row.secrets.ResetTokenHash = ""
		row.secrets.ResetTokenExpires = nil
	})
	return err
}

// ConsumeResetToken swaps in the new hash only while the token is still
// pending and unexpired.
func (s *Store) ConsumeResetToken(_ context.Context, id int64, tokenHash string, now time.Time, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.activeUser(id)
	if err != nil {
		return err
	}
	sec := &row.secrets
	if tokenHash == "" || sec.ResetTokenHash != tokenHash || sec.ResetTokenExpires == nil || !sec.ResetTokenExpires.After(now) {
		return storage.ErrNotFound
	}
	sec.PasswordHash = passwordHash
	sec.PasswordChangedAt = &changedAt
	sec.ResetTokenHash = ""
	sec.ResetTokenExpires = nil
	row.user.UpdatedAt = time.Now()
	return nil
}

// AssignRole assigns a role by id.
func (s *Store) AssignRole(_ context.Context, id, roleID int64) (models.User, error) {
	s.mu.RLock()
	_, ok := s.roles[roleID]
	s.mu.RUnlock()
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return s.mutateUser(id, func(row *userRow) { row.roleID = &roleID })
}

// UpdateImages stores new avatar URLs.
func (s *Store) UpdateImages(_ context.Context, id int64, images models.ProfileImages) (models.User, error) {
	return s.mutateUser(id, func(row *userRow) { row.user.Images = images })
}

// SoftDeleteUser flags the user deleted and returns its last state.
func (s *Store) SoftDeleteUser(_ context.Context, id int64) (models.User, error) {
	return s.mutateUser(id, func(row *userRow) {
		row.user.IsDeleted = true
		row.secrets.RefreshToken = ""
	})
}

// ListRoles returns every role ordered by id.
func (s *Store) ListRoles(_ context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	slices.SortFunc(roles, func(a, b models.Role) int { return cmp.Compare(a.ID, b.ID) })
	return roles, nil
}

// FindRole fetches a role by id.
func (s *Store) FindRole(_ context.Context, id int64) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return models.Role{}, storage.ErrNotFound
	}
	return r, nil
}

// FindRoleByName fetches a role by its unique name.
func (s *Store) FindRoleByName(_ context.Context, name models.RoleName) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return models.Role{}, storage.ErrNotFound
}

// CreateRole inserts a role with a unique name.
func (s *Store) CreateRole(_ context.Context, role models.Role) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return models.Role{}, &storage.ConflictError{Field: "name"}
		}
	}
	now := time.Now()
	role.ID = s.id()
	role.CreatedAt, role.UpdatedAt = now, now
	s.roles[role.ID] = role
	return role, nil
}

// UpdateRole renames or retypes a role.
func (s *Store) UpdateRole(_ context.Context, role models.Role) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[role.ID]
	if !ok {
		return models.Role{}, storage.ErrNotFound
	}
	for _, r := range s.roles {
		if r.ID != role.ID && r.Name == role.Name {
			return models.Role{}, &storage.ConflictError{Field: "name"}
		}
	}
	existing.Name = role.Name
	existing.Type = role.Type
	existing.UpdatedAt = time.Now()
	s.roles[role.ID] = existing
	return existing, nil
}

// DeleteRole removes a role that no user references.
func (s *Store) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return storage.ErrNotFound
	}
	for _, row := range s.users {
		if row.roleID != nil && *row.roleID == id {
			return storage.ErrInUse
		}
	}
	delete(s.roles, id)
	return nil
}

// ListCategories returns live or soft-deleted categories ordered by name.
func (s *Store) ListCategories(_ context.Context, deleted bool) ([]models.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExpenseCategory
	for _, c := range s.categories {
		if c.IsDeleted == deleted {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b models.ExpenseCategory) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// FindCategory fetches a category by id, deleted or not.
func (s *Store) FindCategory(_ context.Context, id int64) (models.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return models.ExpenseCategory{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) categoryNameTaken(id int64, name string) bool {
	for _, c := range s.categories {
		if c.ID != id && c.Name == name {
			return true
		}
	}
	return false
}

// CreateCategory inserts a category with a unique name.
func (s *Store) CreateCategory(_ context.Context, name string) (models.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryNameTaken(0, name) {
		return models.ExpenseCategory{}, &storage.ConflictError{Field: "name"}
	}
	now := time.Now()
	c := models.ExpenseCategory{ID: s.id(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.categories[c.ID] = c
	return c, nil
}

// RenameCategory changes a category name.
func (s *Store) RenameCategory(_ context.Context, id int64, name string) (models.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return models.ExpenseCategory{}, storage.ErrNotFound
	}
	if s.categoryNameTaken(id, name) {
		return models.ExpenseCategory{}, &storage.ConflictError{Field: "name"}
	}
	c.Name = name
	c.UpdatedAt = time.Now()
	s.categories[id] = c
	return c, nil
}

// SoftDeleteCategory flags a category deleted and returns its last state.
func (s *Store) SoftDeleteCategory(_ context.Context, id int64) (models.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return models.ExpenseCategory{}, storage.ErrNotFound
	}
	c.IsDeleted = true
	c.UpdatedAt = time.Now()
	s.categories[id] = c
	return c, nil
}

// withCategory attaches the joined category. Callers hold the lock.
func (s *Store) withCategory(e models.Expense) models.Expense {
	e.Category = nil
	if e.CategoryID != nil {
		if c, ok := s.categories[*e.CategoryID]; ok {
			e.Category = &models.CategoryRef{ID: c.ID, Name: c.Name}
		}
	}
	return e
}

// CreateExpense inserts an expense.
func (s *Store) CreateExpense(_ context.Context, e models.Expense) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e.ID = s.id()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.ExpenseDate.IsZero() {
		e.ExpenseDate = now
	}
	if e.TransactionType == "" {
		e.TransactionType = models.Debit
	}
	s.expenses[e.ID] = e
	return s.withCategory(e), nil
}

// FindExpense fetches one of the owner's expenses.
func (s *Store) FindExpense(_ context.Context, ownerID, id int64) (models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return models.Expense{}, storage.ErrNotFound
	}
	return s.withCategory(e), nil
}

// UpdateExpense applies the non-nil patch fields to a live expense.
func (s *Store) UpdateExpense(_ context.Context, ownerID, id int64, p models.ExpensePatch) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID || e.IsDeleted {
		return models.Expense{}, storage.ErrNotFound
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.CategoryID != nil {
		e.CategoryID = p.CategoryID
	}
	if p.SubCategory != nil {
		e.SubCategory = *p.SubCategory
	}
	if p.ExpenseDate != nil {
		e.ExpenseDate = *p.ExpenseDate
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.TransactionType != nil {
		e.TransactionType = *p.TransactionType
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.File != nil {
		e.File = *p.File
	}
	e.UpdatedAt = time.Now()
	s.expenses[id] = e
	return s.withCategory(e), nil
}

// SoftDeleteExpense flags a live expense deleted and returns its last state.
func (s *Store) SoftDeleteExpense(_ context.Context, ownerID, id int64) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID || e.IsDeleted {
		return models.Expense{}, storage.ErrNotFound
	}
	e.IsDeleted = true
	e.UpdatedAt = time.Now()
	s.expenses[id] = e
	return s.withCategory(e), nil
}

// byDateDesc orders newest first, breaking ties on id.
func byDateDesc(a, b models.Expense) int {
	if c := b.ExpenseDate.Compare(a.ExpenseDate); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// ListExpenses returns the filtered page and the total match count.
func (s *Store) ListExpenses(_ context.Context, f storage.ExpenseFilter) ([]models.Expense, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.Expense
	for _, e := range s.expenses {
		if f.Match(e) {
			matched = append(matched, s.withCategory(e))
		}
	}
	slices.SortFunc(matched, byDateDesc)
	return paginate(matched, f.Page), len(matched), nil
}

func (s *Store) window(ownerID int64, since time.Time) []models.Expense {
	var out []models.Expense
	for _, e := range s.expenses {
		if e.OwnerID == ownerID && !e.IsDeleted && !e.ExpenseDate.Before(since) {
			out = append(out, s.withCategory(e))
		}
	}
	return out
}

// ExpenseStats aggregates the owner's live expenses since the given instant.
func (s *Store) ExpenseStats(_ context.Context, ownerID int64, since time.Time) (models.ExpenseStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.ExpenseStats{TotalExpenditure: decimal.Zero, AverageExpenditure: decimal.Zero}
	for _, e := range s.window(ownerID, since) {
		stats.TotalExpenses++
		stats.TotalExpenditure = stats.TotalExpenditure.Add(e.Amount)
	}
	if stats.TotalExpenses > 0 {
		stats.AverageExpenditure = stats.TotalExpenditure.Div(decimal.NewFromInt(stats.TotalExpenses)).Round(2)
	}
	return stats, nil
}

// ExpenseInsights ranks the owner's live expenses since the given instant.
func (s *Store) ExpenseInsights(_ context.Context, ownerID int64, since time.Time, limit int) (models.ExpenseInsights, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := s.window(ownerID, since)

	top := slices.Clone(window)
	slices.SortFunc(top, func(a, b models.Expense) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return byDateDesc(a, b)
	})
	least := slices.Clone(window)
	slices.SortFunc(least, func(a, b models.Expense) int {
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c
		}
		return byDateDesc(a, b)
	})
	return models.ExpenseInsights{
		TopExpenses:   rank(top, limit),
		LeastExpenses: rank(least, limit),
	}, nil
}

func rank(sorted []models.Expense, limit int) []models.RankedExpense {
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]models.RankedExpense, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, models.RankedExpense{
			ID:          e.ID,
			Title:       e.Title,
			Amount:      e.Amount,
			ExpenseDate: e.ExpenseDate,
			Category:    e.Category,
		})
	}
	return out
}

func paginate[T any](items []T, page storage.Page) []T {
	if page.Offset < 0 || page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
