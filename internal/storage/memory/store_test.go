package memory

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
}

func (s *StoreTestSuite) newUser(username, email string) models.User {
	u, err := s.store.CreateUser(s.ctx, models.NewUser{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
	})
	s.Require().NoError(err)
	return u
}

func (s *StoreTestSuite) TestCreateUserConflicts() {
	s.newUser("ada", "ada@example.com")

	_, err := s.store.CreateUser(s.ctx, models.NewUser{Username: "ada", Email: "other@example.com"})
	var conflict *storage.ConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal("username", conflict.Field)
	s.ErrorIs(err, storage.ErrAlreadyExists)

	_, err = s.store.CreateUser(s.ctx, models.NewUser{Username: "bob", Email: "ada@example.com"})
	s.Require().ErrorAs(err, &conflict)
	s.Equal("email", conflict.Field)
}

func (s *StoreTestSuite) TestFindAuthByIdentifierMatchesEitherField() {
	u := s.newUser("ada", "ada@example.com")

	rec, err := s.store.FindAuthByIdentifier(s.ctx, "ada")
	s.Require().NoError(err)
	s.Equal(u.ID, rec.User.ID)
	s.Equal("hash", rec.Secrets.PasswordHash)

	rec, err = s.store.FindAuthByIdentifier(s.ctx, "ada@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, rec.User.ID)

	_, err = s.store.FindAuthByIdentifier(s.ctx, "nobody")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestSoftDeletedUserIsHidden() {
	u := s.newUser("ada", "ada@example.com")
	_, err := s.store.SoftDeleteUser(s.ctx, u.ID)
	s.Require().NoError(err)

	_, err = s.store.FindByID(s.ctx, u.ID)
	s.ErrorIs(err, storage.ErrNotFound)
	_, err = s.store.FindAuthByIdentifier(s.ctx, "ada")
	s.ErrorIs(err, storage.ErrNotFound)

	users, total, err := s.store.ListUsers(s.ctx, storage.Page{Limit: 10})
	s.Require().NoError(err)
	s.Empty(users)
	s.Zero(total)

	exists, err := s.store.ExistsByUsernameOrEmail(s.ctx, "ada", "x@example.com")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *StoreTestSuite) TestResetTokenLifecycle() {
	u := s.newUser("ada", "ada@example.com")
	now := time.Now()
	s.Require().NoError(s.store.SetResetToken(s.ctx, u.ID, "abc", now.Add(10*time.Minute)))

	rec, err := s.store.FindAuthByResetToken(s.ctx, "abc", now)
	s.Require().NoError(err)
	s.Equal(u.ID, rec.User.ID)

	_, err = s.store.FindAuthByResetToken(s.ctx, "abc", now.Add(11*time.Minute))
	s.ErrorIs(err, storage.ErrNotFound)

	s.Require().NoError(s.store.UpdatePassword(s.ctx, u.ID, "new", now))
	_, err = s.store.FindAuthByResetToken(s.ctx, "abc", now)
	s.ErrorIs(err, storage.ErrNotFound)

	rec, err = s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("new", rec.Secrets.PasswordHash)
	s.Require().NotNil(rec.Secrets.PasswordChangedAt)
}

func (s *StoreTestSuite) TestConsumeResetTokenOnce() {
	u := s.newUser("ada", "ada@example.com")
	now := time.Now()
	s.Require().NoError(s.store.SetResetToken(s.ctx, u.ID, "abc", now.Add(10*time.Minute)))

	s.ErrorIs(s.store.ConsumeResetToken(s.ctx, u.ID, "other", now, "x", now), storage.ErrNotFound)
	s.ErrorIs(s.store.ConsumeResetToken(s.ctx, u.ID, "abc", now.Add(10*time.Minute), "x", now), storage.ErrNotFound)

	s.Require().NoError(s.store.ConsumeResetToken(s.ctx, u.ID, "abc", now, "first", now))
	s.ErrorIs(s.store.ConsumeResetToken(s.ctx, u.ID, "abc", now, "second", now), storage.ErrNotFound)

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("first", rec.Secrets.PasswordHash)
	s.Empty(rec.Secrets.ResetTokenHash)
	s.Nil(rec.Secrets.ResetTokenExpires)
}

func (s *StoreTestSuite) TestSoftDeletedCategoryStaysRetrievable() {
	food, err := s.store.CreateCategory(s.ctx, "FOOD")
	s.Require().NoError(err)
	_, err = s.store.CreateCategory(s.ctx, "RENT")
	s.Require().NoError(err)

	names := func(deleted bool) []string {
		list, err := s.store.ListCategories(s.ctx, deleted)
		s.Require().NoError(err)
		out := make([]string, 0, len(list))
		for _, c := range list {
			out = append(out, c.Name)
		}
		return out
	}
	s.Equal([]string{"FOOD", "RENT"}, names(false))
	s.Empty(names(true))

	deleted, err := s.store.SoftDeleteCategory(s.ctx, food.ID)
	s.Require().NoError(err)
	s.True(deleted.IsDeleted)

	s.Equal([]string{"RENT"}, names(false))
	s.Equal([]string{"FOOD"}, names(true))

	got, err := s.store.FindCategory(s.ctx, food.ID)
	s.Require().NoError(err)
	s.Equal("FOOD", got.Name)
	s.True(got.IsDeleted)
}

func (s *StoreTestSuite) TestPaginatePastTheEnd() {
	items := []int{1, 2, 3}
	s.Empty(paginate(items, storage.Page{Limit: 2, Offset: 3}))
	s.Empty(paginate(items, storage.Page{Limit: 2, Offset: -10}))
	s.Equal([]int{3}, paginate(items, storage.Page{Limit: 2, Offset: 2}))
}

func (s *StoreTestSuite) TestRolesAndAssignment() {
	role, err := s.store.CreateRole(s.ctx, models.Role{Name: models.Admin, Type: models.RoleTypeAdminPanel})
	s.Require().NoError(err)
	_, err = s.store.CreateRole(s.ctx, models.Role{Name: models.Admin})
	s.ErrorIs(err, storage.ErrAlreadyExists)

	u := s.newUser("ada", "ada@example.com")
	updated, err := s.store.AssignRole(s.ctx, u.ID, role.ID)
	s.Require().NoError(err)
	s.Require().NotNil(updated.Role)
	s.Equal(models.Admin, updated.RoleName())

	s.ErrorIs(s.store.DeleteRole(s.ctx, role.ID), storage.ErrInUse)
	_, err = s.store.AssignRole(s.ctx, u.ID, 999)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestSoftDeletedExpenseStaysRetrievable() {
	cat, err := s.store.CreateCategory(s.ctx, "FOOD")
	s.Require().NoError(err)
	e, err := s.store.CreateExpense(s.ctx, models.Expense{
		Title:      "Lunch",
		CategoryID: &cat.ID,
		Amount:     decimal.NewFromInt(12),
		OwnerID:    1,
	})
	s.Require().NoError(err)
	s.Equal(models.Debit, e.TransactionType)
	s.Require().NotNil(e.Category)
	s.Equal("FOOD", e.Category.Name)

	deleted, err := s.store.SoftDeleteExpense(s.ctx, 1, e.ID)
	s.Require().NoError(err)
	s.True(deleted.IsDeleted)

	list, total, err := s.store.ListExpenses(s.ctx, storage.ExpenseFilter{OwnerID: 1})
	s.Require().NoError(err)
	s.Empty(list)
	s.Zero(total)

	got, err := s.store.FindExpense(s.ctx, 1, e.ID)
	s.Require().NoError(err)
	s.True(got.IsDeleted)

	_, err = s.store.FindExpense(s.ctx, 2, e.ID)
	s.ErrorIs(err, storage.ErrNotFound)
	_, err = s.store.SoftDeleteExpense(s.ctx, 1, e.ID)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *StoreTestSuite) TestStatsOnEmptyWindow() {
	stats, err := s.store.ExpenseStats(s.ctx, 1, time.Now().AddDate(0, 0, -7))
	s.Require().NoError(err)
	s.Zero(stats.TotalExpenses)
	s.True(stats.TotalExpenditure.IsZero())
	s.True(stats.AverageExpenditure.IsZero())
}

func (s *StoreTestSuite) TestInsightsWithFewRecords() {
	now := time.Now()
	for i, amount := range []int64{30, 10, 20} {
		_, err := s.store.CreateExpense(s.ctx, models.Expense{
			Title:       "e",
			Amount:      decimal.NewFromInt(amount),
			OwnerID:     1,
			ExpenseDate: now.Add(-time.Duration(i) * time.Hour),
		})
		s.Require().NoError(err)
	}

	insights, err := s.store.ExpenseInsights(s.ctx, 1, now.AddDate(0, 0, -1), 5)
	s.Require().NoError(err)
	s.Require().Len(insights.TopExpenses, 3)
	s.Require().Len(insights.LeastExpenses, 3)
	s.Equal("30", insights.TopExpenses[0].Amount.String())
	s.Equal("10", insights.LeastExpenses[0].Amount.String())
	s.Nil(insights.TopExpenses[0].Category)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestListExpensesMatchesFilter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := New()
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

		n := rapid.IntRange(0, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			_, err := store.CreateExpense(ctx, models.Expense{
				Title:       "x",
				OwnerID:     rapid.Int64Range(1, 2).Draw(t, "owner"),
				Amount:      decimal.NewFromInt(rapid.Int64Range(1, 500).Draw(t, "amount")),
				ExpenseDate: base.AddDate(0, 0, rapid.IntRange(0, 60).Draw(t, "day")),
			})
			require.NoError(t, err)
		}

		minAmount := decimal.NewFromInt(rapid.Int64Range(1, 250).Draw(t, "min"))
		to := base.AddDate(0, 0, rapid.IntRange(0, 60).Draw(t, "to"))
		filter := storage.ExpenseFilter{
			OwnerID:   1,
			From:      base.AddDate(0, 0, rapid.IntRange(0, 30).Draw(t, "from")),
			To:        &to,
			MinAmount: &minAmount,
			Page:      storage.Page{Limit: rapid.IntRange(1, 10).Draw(t, "limit")},
		}

		page, total, err := store.ListExpenses(ctx, filter)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), filter.Page.Limit)
		assert.LessOrEqual(t, len(page), total)
		for _, e := range page {
			assert.True(t, filter.Match(e))
		}
		assert.True(t, slices.IsSortedFunc(page, byDateDesc))
	})
}

func TestInsightsAreSortedAndBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := New()
		ctx := context.Background()
		now := time.Now()

		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			_, err := store.CreateExpense(ctx, models.Expense{
				Title:       "x",
				OwnerID:     1,
				Amount:      decimal.NewFromInt(rapid.Int64Range(1, 1000).Draw(t, "amount")),
				ExpenseDate: now.Add(-time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		insights, err := store.ExpenseInsights(ctx, 1, now.Add(-time.Hour), 5)
		require.NoError(t, err)
		want := min(n, 5)
		assert.Len(t, insights.TopExpenses, want)
		assert.Len(t, insights.LeastExpenses, want)
		for i := 1; i < len(insights.TopExpenses); i++ {
			assert.False(t, insights.TopExpenses[i].Amount.GreaterThan(insights.TopExpenses[i-1].Amount))
			assert.False(t, insights.LeastExpenses[i].Amount.LessThan(insights.LeastExpenses[i-1].Amount))
		}
	})
}
