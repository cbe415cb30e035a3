package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/logger"
	"github.com/hongminglow/expense-be/internal/mail"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

const instrumentationName = "github.com/hongminglow/expense-be/internal/auth"

// Client-facing messages. Several are shared between distinct failure causes
// so responses do not reveal which identifier exists.
const (
	MsgFieldsRequired     = "All fields are required!"
	MsgPasswordMismatch   = "Passwords do not match."
	MsgPasswordTooShort   = "Password must be at least 8 characters."
	MsgPasswordTooLong    = "Password must be at most 72 bytes."
	MsgAccountExists      = "An account with these credentials already exists."
	MsgInvalidCredentials = "Invalid credentials"
	MsgForbidden          = "You do not have permission to perform this action."
	MsgNotLoggedIn        = "You are not logged in! Please log in to get access."
	MsgAccessExpired      = "Access token expired!"
	MsgInvalidToken       = "Invalid token. Please log in again."
	MsgUserGone           = "This user does not exist."
	MsgPasswordChanged    = "Password has been changed recently! Please log in again."
	MsgRefreshMissing     = "Refresh token not found. Please log in again."
	MsgRefreshExpired     = "Refresh token expired! Please log in again."
	MsgRefreshRejected    = "Refresh token is no longer valid."
	MsgResetMailFailed    = "There was an error sending the email. Try again later."
	MsgResetInvalid       = "Link is either invalid or expired."
	MsgResetFailed        = "Error occurred. Try again."
	MsgWrongPassword      = "Current password is incorrect."
	MsgRoleNotFound       = "Role not found."
)

// Session is the outcome of a successful credential check.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

// SignupInput is a self-service registration.
type SignupInput struct {
	FirstName       string
	LastName        string
	Username        string
	Email           string
	Phone           string
	Password        string
	PasswordConfirm string
}

// AccountInput is an account created by an administrator. A nil RoleID means
// the default role.
type AccountInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Phone     string
	Password  string
	RoleID    *int64
}

// Deps are the collaborators of Service.
type Deps struct {
	Users     storage.UserStore
	Roles     storage.RoleStore
	Hasher    *Hasher
	Access    *TokenManager
	Refresh   *TokenManager
	Mailer    mail.Mailer
	PublicURL string
	Now       func() time.Time
}

// Service runs the credential lifecycle: signup, login, refresh, logout and
// the password flows. It also authenticates access tokens for the guard.
type Service struct {
	users     storage.UserStore
	roles     storage.RoleStore
	hasher    *Hasher
	access    *TokenManager
	refresh   *TokenManager
	mailer    mail.Mailer
	publicURL string
	now       func() time.Time

	tracer   trace.Tracer
	logins   metric.Int64Counter
	resets   metric.Int64Counter
	rejected metric.Int64Counter

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires the collaborators.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	meter := otel.Meter(instrumentationName)
	return &Service{
		users:     d.Users,
		roles:     d.Roles,
		hasher:    d.Hasher,
		access:    d.Access,
		refresh:   d.Refresh,
		mailer:    d.Mailer,
		publicURL: strings.TrimRight(d.PublicURL, "/"),
		now:       d.Now,
		tracer:    otel.Tracer(instrumentationName),
		logins:    counter(meter, "auth.logins", "Login attempts by outcome."),
		resets:    counter(meter, "auth.password_resets", "Password reset steps by outcome."),
		rejected:  counter(meter, "auth.tokens.rejected", "Rejected tokens by reason."),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}

func (s *Service) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "auth."+name)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

func checkPassword(password string) error {
	if len(password) < 8 {
		return apperr.Validation(MsgPasswordTooShort)
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation(MsgPasswordTooLong)
	}
	return nil
}

// Signup registers a user with the default role. Username and email
// collisions produce the same message.
func (s *Service) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	ctx, span := s.start(ctx, "signup")
	defer span.End()

	if blank(in.FirstName, in.LastName, in.Username, in.Email, in.Password) {
		return models.User{}, fail(span, apperr.Validation(MsgFieldsRequired))
	}
	if in.Password != in.PasswordConfirm {
		return models.User{}, fail(span, apperr.Validation(MsgPasswordMismatch))
	}
	user, err := s.createAccount(ctx, AccountInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Username:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  in.Password,
	})
	if err != nil {
		return models.User{}, fail(span, err)
	}
	logger.Log.Info().Str("user", logger.HashID(user.ID)).Msg("user signed up")
	return user, nil
}

// CreateAccount is the administrative variant of Signup.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (models.User, error) {
	ctx, span := s.start(ctx, "create_account")
	defer span.End()

	if blank(in.FirstName, in.LastName, in.Username, in.Email, in.Password) {
		return models.User{}, fail(span, apperr.Validation(MsgFieldsRequired))
	}
	user, err := s.createAccount(ctx, in)
	if err != nil {
		return models.User{}, fail(span, err)
	}
	return user, nil
}

func (s *Service) createAccount(ctx context.Context, in AccountInput) (models.User, error) {
	if err := checkPassword(in.Password); err != nil {
		return models.User{}, err
	}
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return models.User{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return models.User{}, apperr.Conflict(MsgAccountExists)
	}

	roleID, err := s.resolveRole(ctx, in.RoleID)
	if err != nil {
		return models.User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, models.NewUser{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     username,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		RoleID:       roleID,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return models.User{}, apperr.Conflict(MsgAccountExists).WithCause(err)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// resolveRole validates an explicit role or falls back to the default one.
// A missing default role leaves the user unassigned.
func (s *Service) resolveRole(ctx context.Context, roleID *int64) (*int64, error) {
	if roleID != nil {
		if _, err := s.roles.FindRole(ctx, *roleID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperr.Validation(MsgRoleNotFound)
			}
			return nil, fmt.Errorf("find role: %w", err)
		}
		return roleID, nil
	}
	role, err := s.roles.FindRoleByName(ctx, models.NormalUser)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find default role: %w", err)
	}
	return &role.ID, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	return s.login(ctx, "login", identifier, password, nil)
}

// AdminLogin is Login restricted to the administrative roles. The role gate
// runs only after the password check succeeds.
func (s *Service) AdminLogin(ctx context.Context, identifier, password string) (Session, error) {
	return s.login(ctx, "admin_login", identifier, password, models.AdminRoles)
}

func (s *Service) login(ctx context.Context, op, identifier, password string, allowed []models.RoleName) (Session, error) {
	ctx, span := s.start(ctx, op)
	defer span.End()

	result := "success"
	defer func() {
		s.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("result", result)))
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		result = "invalid_input"
		return Session{}, fail(span, apperr.Authentication(MsgInvalidCredentials))
	}
	if strings.Contains(identifier, "@") {
		identifier = normalizeEmail(identifier)
	}

	rec, err := s.users.FindAuthByIdentifier(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		// Spend the same bcrypt time as a real mismatch.
		s.hasher.Verify(password, s.dummy())
		result = "invalid_credentials"
		logger.Log.Info().Str("identifier", logger.Redact(identifier)).Msg("login rejected")
		return Session{}, fail(span, apperr.Authentication(MsgInvalidCredentials))
	}
	if err != nil {
		result = "error"
		return Session{}, fail(span, fmt.Errorf("find user: %w", err))
	}
	if !s.hasher.Verify(password, rec.Secrets.PasswordHash) {
		result = "invalid_credentials"
		logger.Log.Info().Str("user", logger.HashID(rec.User.ID)).Msg("login rejected")
		return Session{}, fail(span, apperr.Authentication(MsgInvalidCredentials))
	}
	if allowed != nil && !slices.Contains(allowed, rec.User.RoleName()) {
		result = "forbidden"
		logger.Log.Warn().Str("user", logger.HashID(rec.User.ID)).Msg("admin login denied")
		return Session{}, fail(span, apperr.Authorization(MsgForbidden))
	}

	sess, err := s.openSession(ctx, rec.User)
	if err != nil {
		result = "error"
		return Session{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("user", logger.HashID(rec.User.ID)))
	logger.Log.Info().Str("user", logger.HashID(rec.User.ID)).Str("op", op).Msg("login succeeded")
	return sess, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("expense-be-dummy-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// openSession issues both tokens and persists the refresh token, replacing
// any previous one.
func (s *Service) openSession(ctx context.Context, user models.User) (Session, error) {
	access, err := s.access.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.refresh.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Refresh mints a new access token from the refresh cookie value. The
// refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, token string) (string, error) {
	ctx, span := s.start(ctx, "refresh")
	defer span.End()

	if token == "" {
		return "", fail(span, apperr.Authentication(MsgRefreshMissing))
	}
	claims, err := s.refresh.Verify(token)
	if err != nil {
		s.reject(ctx, "refresh", err)
		if errors.Is(err, ErrTokenExpired) {
			return "", fail(span, apperr.Authentication(MsgRefreshExpired))
		}
		return "", fail(span, apperr.Authentication(MsgInvalidToken).WithCause(err))
	}

	rec, err := s.users.FindAuthByID(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fail(span, apperr.Authorization(MsgRefreshRejected))
	}
	if err != nil {
		return "", fail(span, fmt.Errorf("find user: %w", err))
	}
	stored := rec.Secrets.RefreshToken
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "refresh"), attribute.String("reason", "reused")))
		logger.Log.Warn().Str("user", logger.HashID(rec.User.ID)).Msg("refresh token reuse rejected")
		return "", fail(span, apperr.Authorization(MsgRefreshRejected))
	}

	access, err := s.access.Issue(rec.User.ID)
	if err != nil {
		return "", fail(span, err)
	}
	return access, nil
}

// Logout ends the session named by the refresh token. The signature must be
// valid but expiry is ignored. Unusable tokens are a silent no-op so logout
// always succeeds for the client.
func (s *Service) Logout(ctx context.Context, token string) {
	ctx, span := s.start(ctx, "logout")
	defer span.End()

	if token == "" {
		return
	}
	claims, err := s.refresh.VerifyIgnoringExpiry(token)
	if err != nil {
		s.reject(ctx, "logout", err)
		return
	}
	if err := s.users.SetRefreshToken(ctx, claims.Subject, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
		span.RecordError(err)
		logger.Log.Error().Err(err).Str("user", logger.HashID(claims.Subject)).Msg("clear refresh token")
		return
	}
	logger.Log.Info().Str("user", logger.HashID(claims.Subject)).Msg("logged out")
}

func (s *Service) reject(ctx context.Context, kind string, err error) {
	reason := "invalid"
	if errors.Is(err, ErrTokenExpired) {
		reason = "expired"
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), attribute.String("reason", reason)))
}

// ForgotPassword mails a reset link. Unknown identifiers succeed silently. If
// the mail cannot be sent the stored token is rolled back.
func (s *Service) ForgotPassword(ctx context.Context, identifier string) error {
	ctx, span := s.start(ctx, "forgot_password")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return fail(span, apperr.Validation("Email or username is required."))
	}
	if strings.Contains(identifier, "@") {
		identifier = normalizeEmail(identifier)
	}
	rec, err := s.users.FindAuthByIdentifier(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "unknown_user")))
		return nil
	}
	if err != nil {
		return fail(span, fmt.Errorf("find user: %w", err))
	}

	raw, hash, err := NewResetToken()
	if err != nil {
		return fail(span, err)
	}
	if err := s.users.SetResetToken(ctx, rec.User.ID, hash, s.now().Add(ResetTokenTTL)); err != nil {
		return fail(span, fmt.Errorf("store reset token: %w", err))
	}

	link := s.publicURL + "/api/v1/users/reset-password/" + raw
	msg := mail.Message{
		To:      rec.User.Email,
		Subject: "Password reset link is valid for 10 minutes.",
		Body: "Forgot your password? Submit a PATCH request to: " + link +
			"\nIf you didn't forget your password, please ignore this email!",
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		if cerr := s.users.ClearResetToken(ctx, rec.User.ID); cerr != nil {
			logger.Log.Error().Err(cerr).Str("user", logger.HashID(rec.User.ID)).Msg("roll back reset token")
		}
		s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "mail_failed")))
		return fail(span, apperr.External(MsgResetMailFailed, err))
	}
	s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "link_sent")))
	return nil
}

// ResetPassword consumes a reset token, generates a new password and mails
// it. The password is only replaced once the mail went out, and only if the
// token is still pending at that point.
func (s *Service) ResetPassword(ctx context.Context, rawToken string) error {
	ctx, span := s.start(ctx, "reset_password")
	defer span.End()

	now := s.now()
	tokenHash := HashResetToken(rawToken)
	rec, err := s.users.FindAuthByResetToken(ctx, tokenHash, now)
	if errors.Is(err, storage.ErrNotFound) {
		s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "invalid_token")))
		return fail(span, apperr.Validation(MsgResetInvalid))
	}
	if err != nil {
		return fail(span, fmt.Errorf("find reset token: %w", err))
	}

	password, err := RandomPassword()
	if err != nil {
		return fail(span, err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fail(span, fmt.Errorf("hash password: %w", err))
	}

	msg := mail.Message{
		To:      rec.User.Email,
		Subject: "New password for account " + rec.User.Email,
		Body: "Password reset token has been verified. Use the password below to log in " +
			"and update it afterwards.\nPassword - " + password,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fail(span, apperr.External(MsgResetFailed, err))
	}
	err = s.users.ConsumeResetToken(ctx, rec.User.ID, tokenHash, now, hash, now.Add(-time.Second))
	if errors.Is(err, storage.ErrNotFound) {
		s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "invalid_token")))
		return fail(span, apperr.Validation(MsgResetInvalid))
	}
	if err != nil {
		return fail(span, fmt.Errorf("consume reset token: %w", err))
	}
	s.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "password_reset")))
	logger.Log.Info().Str("user", logger.HashID(rec.User.ID)).Msg("password reset")
	return nil
}

// UpdatePassword changes the password of an authenticated user and opens a
// fresh session. Tokens issued before the change stop working.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, current, next string) (Session, error) {
	ctx, span := s.start(ctx, "update_password")
	defer span.End()

	if current == "" || next == "" {
		return Session{}, fail(span, apperr.Validation(MsgFieldsRequired))
	}
	if err := checkPassword(next); err != nil {
		return Session{}, fail(span, err)
	}
	rec, err := s.users.FindAuthByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, fail(span, apperr.New(apperr.KindNotFound, http.StatusBadRequest, MsgUserGone))
	}
	if err != nil {
		return Session{}, fail(span, fmt.Errorf("find user: %w", err))
	}
	if !s.hasher.Verify(current, rec.Secrets.PasswordHash) {
		return Session{}, fail(span, apperr.Authentication(MsgWrongPassword))
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return Session{}, fail(span, fmt.Errorf("hash password: %w", err))
	}
	// Back-dated one second so tokens minted right after the change, which
	// share its second, stay valid.
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now().Add(-time.Second)); err != nil {
		return Session{}, fail(span, fmt.Errorf("update password: %w", err))
	}
	sess, err := s.openSession(ctx, rec.User)
	if err != nil {
		return Session{}, fail(span, err)
	}
	logger.Log.Info().Str("user", logger.HashID(userID)).Msg("password updated")
	return sess, nil
}

// Authenticate resolves an access token to its live user. It rejects tokens
// minted before the last password change.
func (s *Service) Authenticate(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, apperr.Authentication(MsgNotLoggedIn)
	}
	claims, err := s.access.Verify(token)
	if err != nil {
		s.reject(ctx, "access", err)
		if errors.Is(err, ErrTokenExpired) {
			return models.User{}, apperr.Authentication(MsgAccessExpired)
		}
		return models.User{}, apperr.Authentication(MsgInvalidToken).WithCause(err)
	}

	rec, err := s.users.FindAuthByID(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.New(apperr.KindNotFound, http.StatusBadRequest, MsgUserGone)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	if rec.Secrets.PasswordChangedAfter(claims.IssuedAt) {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "access"), attribute.String("reason", "stale")))
		return models.User{}, apperr.Authentication(MsgPasswordChanged)
	}
	return rec.User, nil
}

// Profile returns the caller's own user record.
func (s *Service) Profile(ctx context.Context, userID int64) (models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.New(apperr.KindNotFound, http.StatusBadRequest, MsgUserGone)
	}
	return user, err
}

// RefreshTTL is the refresh token lifetime, also used for the cookie.
func (s *Service) RefreshTTL() time.Duration {
	return s.refresh.TTL()
}
