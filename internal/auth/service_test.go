package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/mail"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage/memory"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last() mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	mailer *fakeMailer
	clock  *clock
	svc    *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewSeeded()
	s.mailer = &fakeMailer{}
	s.clock = &clock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	s.svc = NewService(Deps{
		Users:     s.store,
		Roles:     s.store,
		Hasher:    NewHasher(bcrypt.MinCost),
		Access:    NewTokenManager("access-secret", "test", 15*time.Minute).WithClock(s.clock.Now),
		Refresh:   NewTokenManager("refresh-secret", "test", 7*24*time.Hour).WithClock(s.clock.Now),
		Mailer:    s.mailer,
		PublicURL: "https://api.example.com/",
		Now:       s.clock.Now,
	})
}

func (s *ServiceTestSuite) signup(username, email string) models.User {
	u, err := s.svc.Signup(s.ctx, SignupInput{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Username:        username,
		Email:           email,
		Password:        "password123",
		PasswordConfirm: "password123",
	})
	s.Require().NoError(err)
	return u
}

func (s *ServiceTestSuite) requireAppErr(err error, status int, message string) {
	s.T().Helper()
	appErr, ok := apperr.As(err)
	s.Require().True(ok, "expected operational error, got %v", err)
	s.Equal(status, appErr.Status)
	s.Equal(message, appErr.Message)
}

func (s *ServiceTestSuite) TestSignupAssignsDefaultRole() {
	u := s.signup("ada", "Ada@Example.com")
	s.Equal("ada@example.com", u.Email)
	s.Equal(models.NormalUser, u.RoleName())
}

func (s *ServiceTestSuite) TestSignupValidation() {
	_, err := s.svc.Signup(s.ctx, SignupInput{FirstName: "A", LastName: " ", Username: "a", Email: "a@b.c", Password: "password123"})
	s.requireAppErr(err, http.StatusBadRequest, MsgFieldsRequired)

	_, err = s.svc.Signup(s.ctx, SignupInput{FirstName: "A", LastName: "B", Username: "a", Email: "a@b.c", Password: "password123", PasswordConfirm: "password124"})
	s.requireAppErr(err, http.StatusBadRequest, MsgPasswordMismatch)

	_, err = s.svc.Signup(s.ctx, SignupInput{FirstName: "A", LastName: "B", Username: "a", Email: "a@b.c", Password: "short", PasswordConfirm: "short"})
	s.requireAppErr(err, http.StatusBadRequest, MsgPasswordTooShort)
}

func (s *ServiceTestSuite) TestPasswordByteLimit() {
	wide := strings.Repeat("é", 72)
	_, err := s.svc.Signup(s.ctx, SignupInput{FirstName: "A", LastName: "B", Username: "a", Email: "a@b.c", Password: wide, PasswordConfirm: wide})
	s.requireAppErr(err, http.StatusBadRequest, MsgPasswordTooLong)

	exact := strings.Repeat("é", 36)
	_, err = s.svc.Signup(s.ctx, SignupInput{FirstName: "A", LastName: "B", Username: "a", Email: "a@b.c", Password: exact, PasswordConfirm: exact})
	s.Require().NoError(err)

	u := s.signup("ada", "ada@example.com")
	_, err = s.svc.UpdatePassword(s.ctx, u.ID, "password123", wide)
	s.requireAppErr(err, http.StatusBadRequest, MsgPasswordTooLong)
	_, err = s.svc.CreateAccount(s.ctx, AccountInput{FirstName: "B", LastName: "C", Username: "bob", Email: "bob@b.c", Password: wide})
	s.requireAppErr(err, http.StatusBadRequest, MsgPasswordTooLong)
}

func (s *ServiceTestSuite) TestSignupConflictIsGeneric() {
	s.signup("ada", "ada@example.com")

	_, byUsername := s.svc.Signup(s.ctx, SignupInput{FirstName: "B", LastName: "B", Username: "ada", Email: "new@example.com", Password: "password123", PasswordConfirm: "password123"})
	_, byEmail := s.svc.Signup(s.ctx, SignupInput{FirstName: "B", LastName: "B", Username: "newname", Email: "ada@example.com", Password: "password123", PasswordConfirm: "password123"})

	s.requireAppErr(byUsername, http.StatusBadRequest, MsgAccountExists)
	s.requireAppErr(byEmail, http.StatusBadRequest, MsgAccountExists)
	s.Equal(byUsername.Error(), byEmail.Error())
}

func (s *ServiceTestSuite) TestLoginFailuresAreIndistinguishable() {
	s.signup("ada", "ada@example.com")

	_, unknown := s.svc.Login(s.ctx, "nobody", "password123")
	_, wrong := s.svc.Login(s.ctx, "ada", "wrong-password")
	s.requireAppErr(unknown, http.StatusUnauthorized, MsgInvalidCredentials)
	s.requireAppErr(wrong, http.StatusUnauthorized, MsgInvalidCredentials)
	s.Equal(unknown.Error(), wrong.Error())
}

func (s *ServiceTestSuite) TestLoginByEmailPersistsRefreshToken() {
	u := s.signup("ada", "ada@example.com")

	sess, err := s.svc.Login(s.ctx, "ADA@example.com", "password123")
	s.Require().NoError(err)
	s.NotEmpty(sess.AccessToken)
	s.NotEmpty(sess.RefreshToken)
	s.Equal(u.ID, sess.User.ID)

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(sess.RefreshToken, rec.Secrets.RefreshToken)
}

func (s *ServiceTestSuite) TestAdminLoginRoleGate() {
	u := s.signup("ada", "ada@example.com")

	_, err := s.svc.AdminLogin(s.ctx, "ada", "password123")
	s.requireAppErr(err, http.StatusForbidden, MsgForbidden)
	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(rec.Secrets.RefreshToken)

	_, err = s.svc.AdminLogin(s.ctx, "ada", "wrong-password")
	s.requireAppErr(err, http.StatusUnauthorized, MsgInvalidCredentials)

	admin, err := s.store.FindRoleByName(s.ctx, models.Admin)
	s.Require().NoError(err)
	_, err = s.store.AssignRole(s.ctx, u.ID, admin.ID)
	s.Require().NoError(err)

	sess, err := s.svc.AdminLogin(s.ctx, "ada", "password123")
	s.Require().NoError(err)
	s.Equal(models.Admin, sess.User.RoleName())
}

func (s *ServiceTestSuite) TestRefreshAndReuseAfterLogout() {
	s.signup("ada", "ada@example.com")
	sess, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	access, err := s.svc.Refresh(s.ctx, sess.RefreshToken)
	s.Require().NoError(err)
	_, err = s.svc.Authenticate(s.ctx, access)
	s.Require().NoError(err)

	s.svc.Logout(s.ctx, sess.RefreshToken)
	_, err = s.svc.Refresh(s.ctx, sess.RefreshToken)
	s.requireAppErr(err, http.StatusForbidden, MsgRefreshRejected)

	// Logout is idempotent.
	s.svc.Logout(s.ctx, sess.RefreshToken)
	s.svc.Logout(s.ctx, "garbage")
	s.svc.Logout(s.ctx, "")
}

func (s *ServiceTestSuite) TestRefreshFailures() {
	_, err := s.svc.Refresh(s.ctx, "")
	s.requireAppErr(err, http.StatusUnauthorized, MsgRefreshMissing)

	_, err = s.svc.Refresh(s.ctx, "garbage")
	s.requireAppErr(err, http.StatusUnauthorized, MsgInvalidToken)

	s.signup("ada", "ada@example.com")
	sess, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	// An access token is signed with the other secret.
	_, err = s.svc.Refresh(s.ctx, sess.AccessToken)
	s.requireAppErr(err, http.StatusUnauthorized, MsgInvalidToken)

	// A second login replaces the stored token.
	s.clock.Advance(time.Second)
	_, err = s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)
	_, err = s.svc.Refresh(s.ctx, sess.RefreshToken)
	s.requireAppErr(err, http.StatusForbidden, MsgRefreshRejected)

	s.clock.Advance(8 * 24 * time.Hour)
	_, err = s.svc.Refresh(s.ctx, sess.RefreshToken)
	s.requireAppErr(err, http.StatusUnauthorized, MsgRefreshExpired)
}

func (s *ServiceTestSuite) TestLogoutAcceptsExpiredRefreshToken() {
	u := s.signup("ada", "ada@example.com")
	sess, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	s.clock.Advance(30 * 24 * time.Hour)
	s.svc.Logout(s.ctx, sess.RefreshToken)

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(rec.Secrets.RefreshToken)
}

func (s *ServiceTestSuite) TestAuthenticateGuards() {
	u := s.signup("ada", "ada@example.com")
	sess, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	got, err := s.svc.Authenticate(s.ctx, sess.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	_, err = s.svc.Authenticate(s.ctx, "")
	s.requireAppErr(err, http.StatusUnauthorized, MsgNotLoggedIn)

	_, err = s.svc.Authenticate(s.ctx, sess.RefreshToken)
	s.requireAppErr(err, http.StatusUnauthorized, MsgInvalidToken)

	s.clock.Advance(16 * time.Minute)
	_, err = s.svc.Authenticate(s.ctx, sess.AccessToken)
	s.requireAppErr(err, http.StatusUnauthorized, MsgAccessExpired)
}

func (s *ServiceTestSuite) TestAuthenticateRejectsDeletedUser() {
	u := s.signup("ada", "ada@example.com")
	sess, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	_, err = s.store.SoftDeleteUser(s.ctx, u.ID)
	s.Require().NoError(err)
	_, err = s.svc.Authenticate(s.ctx, sess.AccessToken)
	s.requireAppErr(err, http.StatusBadRequest, MsgUserGone)
}

func (s *ServiceTestSuite) TestPasswordChangeInvalidatesOlderTokens() {
	u := s.signup("ada", "ada@example.com")
	old, err := s.svc.Login(s.ctx, "ada", "password123")
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Second)
	_, err = s.svc.UpdatePassword(s.ctx, u.ID, "wrong-password", "newpassword1")
	s.requireAppErr(err, http.StatusUnauthorized, MsgWrongPassword)

	fresh, err := s.svc.UpdatePassword(s.ctx, u.ID, "password123", "newpassword1")
	s.Require().NoError(err)

	_, err = s.svc.Authenticate(s.ctx, old.AccessToken)
	s.requireAppErr(err, http.StatusUnauthorized, MsgPasswordChanged)

	_, err = s.svc.Authenticate(s.ctx, fresh.AccessToken)
	s.Require().NoError(err)

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(fresh.RefreshToken, rec.Secrets.RefreshToken)

	_, err = s.svc.Login(s.ctx, "ada", "newpassword1")
	s.NoError(err)
}

func (s *ServiceTestSuite) TestForgotPasswordSendsLink() {
	u := s.signup("ada", "ada@example.com")

	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ada"))
	msg := s.mailer.last()
	s.Equal("ada@example.com", msg.To)
	s.Contains(msg.Body, "https://api.example.com/api/v1/users/reset-password/")

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.NotEmpty(rec.Secrets.ResetTokenHash)
	s.Require().NotNil(rec.Secrets.ResetTokenExpires)
	s.Equal(s.clock.Now().Add(ResetTokenTTL), *rec.Secrets.ResetTokenExpires)
	s.NotContains(msg.Body, rec.Secrets.ResetTokenHash)
}

func (s *ServiceTestSuite) TestForgotPasswordUnknownUserIsSilent() {
	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ghost@example.com"))
	s.Empty(s.mailer.sent)
}

func (s *ServiceTestSuite) TestForgotPasswordRollsBackOnMailFailure() {
	u := s.signup("ada", "ada@example.com")
	s.mailer.err = errors.New("smtp down")

	err := s.svc.ForgotPassword(s.ctx, "ada@example.com")
	s.requireAppErr(err, http.StatusInternalServerError, MsgResetMailFailed)

	rec, err := s.store.FindAuthByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(rec.Secrets.ResetTokenHash)
	s.Nil(rec.Secrets.ResetTokenExpires)
}

func resetTokenFrom(body string) string {
	const marker = "/reset-password/"
	i := strings.Index(body, marker)
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, "\n "); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func (s *ServiceTestSuite) TestResetPasswordConsumesTokenOnce() {
	s.signup("ada", "ada@example.com")
	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ada"))
	raw := resetTokenFrom(s.mailer.last().Body)
	s.Len(raw, 64)

	s.clock.Advance(time.Minute)
	s.Require().NoError(s.svc.ResetPassword(s.ctx, raw))
	msg := s.mailer.last()
	s.Contains(msg.Subject, "ada@example.com")
	password := strings.TrimSpace(msg.Body[strings.LastIndex(msg.Body, "Password - ")+len("Password - "):])

	err := s.svc.ResetPassword(s.ctx, raw)
	s.requireAppErr(err, http.StatusBadRequest, MsgResetInvalid)

	s.clock.Advance(time.Second)
	_, err = s.svc.Login(s.ctx, "ada", password)
	s.NoError(err)
}

func (s *ServiceTestSuite) TestResetPasswordConcurrentSubmissions() {
	s.signup("ada", "ada@example.com")
	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ada"))
	raw := resetTokenFrom(s.mailer.last().Body)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.svc.ResetPassword(s.ctx, raw)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.requireAppErr(err, http.StatusBadRequest, MsgResetInvalid)
	}
	s.Equal(1, succeeded)
}

func (s *ServiceTestSuite) TestResetPasswordExpiredToken() {
	s.signup("ada", "ada@example.com")
	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ada"))
	raw := resetTokenFrom(s.mailer.last().Body)

	s.clock.Advance(ResetTokenTTL + time.Second)
	err := s.svc.ResetPassword(s.ctx, raw)
	s.requireAppErr(err, http.StatusBadRequest, MsgResetInvalid)
}

func (s *ServiceTestSuite) TestResetPasswordMailFailureKeepsPassword() {
	s.signup("ada", "ada@example.com")
	s.Require().NoError(s.svc.ForgotPassword(s.ctx, "ada"))
	raw := resetTokenFrom(s.mailer.last().Body)

	s.mailer.err = errors.New("smtp down")
	err := s.svc.ResetPassword(s.ctx, raw)
	s.requireAppErr(err, http.StatusInternalServerError, MsgResetFailed)

	_, err = s.svc.Login(s.ctx, "ada", "password123")
	s.NoError(err)
}

func (s *ServiceTestSuite) TestCreateAccountWithRole() {
	admin, err := s.store.FindRoleByName(s.ctx, models.Admin)
	s.Require().NoError(err)

	u, err := s.svc.CreateAccount(s.ctx, AccountInput{
		FirstName: "Grace", LastName: "Hopper", Username: "grace", Email: "grace@example.com",
		Password: "password123", RoleID: &admin.ID,
	})
	s.Require().NoError(err)
	s.Equal(models.Admin, u.RoleName())

	missing := int64(999)
	_, err = s.svc.CreateAccount(s.ctx, AccountInput{
		FirstName: "X", LastName: "Y", Username: "x", Email: "x@example.com",
		Password: "password123", RoleID: &missing,
	})
	s.requireAppErr(err, http.StatusBadRequest, MsgRoleNotFound)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestProfileOfMissingUser(t *testing.T) {
	store := memory.New()
	svc := NewService(Deps{Users: store, Roles: store, Hasher: NewHasher(bcrypt.MinCost)})
	_, err := svc.Profile(context.Background(), 1)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}
