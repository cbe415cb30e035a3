package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/expense-be/internal/auth"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
)

// AuthService is the credential lifecycle used by AuthHandler.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (models.User, error)
	Login(ctx context.Context, identifier, password string) (auth.Session, error)
	AdminLogin(ctx context.Context, identifier, password string) (auth.Session, error)
	Refresh(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string)
	ForgotPassword(ctx context.Context, identifier string) error
	ResetPassword(ctx context.Context, rawToken string) error
	UpdatePassword(ctx context.Context, userID int64, current, next string) (auth.Session, error)
	Profile(ctx context.Context, userID int64) (models.User, error)
	RefreshTTL() time.Duration
}

// AuthHandler owns the signup, login and password endpoints.
type AuthHandler struct {
	svc    AuthService
	cookie CookieConfig
	guards Guards
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(svc AuthService, cookie CookieConfig, guards Guards) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie, guards: guards}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	g := h.guards
	mux.Handle("POST "+APIPrefix+"/users/signup", g.limited(h.handleSignup))
	mux.Handle("POST "+APIPrefix+"/users/login", g.limited(h.handleLogin))
	mux.Handle("POST "+APIPrefix+"/admin/login", g.limited(h.handleAdminLogin))
	mux.HandleFunc("POST "+APIPrefix+"/users/refresh", h.handleRefresh)
	mux.HandleFunc("POST "+APIPrefix+"/users/logout", h.handleLogout)
	mux.Handle("POST "+APIPrefix+"/users/forgot-password", g.limited(h.handleForgotPassword))
	mux.Handle("PATCH "+APIPrefix+"/users/reset-password/{token}", g.limited(h.handleResetPassword))
	mux.Handle("GET "+APIPrefix+"/users/profile", g.protected(h.handleProfile))
	mux.Handle("PATCH "+APIPrefix+"/users/update-password", g.protected(h.handleUpdatePassword))
}

func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req dto.SignupRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.svc.Signup(r.Context(), auth.SignupInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Username:        req.Username,
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "Signup successful!", dto.UserResponse{User: user})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.svc.Login)
}

func (h *AuthHandler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.svc.AdminLogin)
}

type loginFunc func(ctx context.Context, identifier, password string) (auth.Session, error)

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, fn loginFunc) {
	var req dto.LoginRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	sess, err := fn(r.Context(), req.Identifier(), req.Password)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	h.cookie.set(w, sess.RefreshToken, h.svc.RefreshTTL())
	respond.JSON(w, http.StatusOK, "Login successful!", dto.LoginResponse{AccessToken: sess.AccessToken, User: sess.User})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	access, err := h.svc.Refresh(r.Context(), refreshCookie(r))
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "New Access Token generated successfully.", dto.AccessTokenResponse{AccessToken: access})
}

// handleLogout always succeeds; the cookie is cleared even when the token was
// unknown or already revoked.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(r.Context(), refreshCookie(r))
	h.cookie.clear(w)
	respond.JSON(w, http.StatusOK, "Logged out successfully!", nil)
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Identifier()); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Password reset link sent to your email!", nil)
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetPassword(r.Context(), r.PathValue("token")); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "New password has been sent to your email.", nil)
}

func (h *AuthHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.svc.Profile(r.Context(), me.ID)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Profile details fetched successfully!", dto.UserResponse{User: user})
}

func (h *AuthHandler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	var req dto.UpdatePasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	sess, err := h.svc.UpdatePassword(r.Context(), me.ID, req.Password, req.NewPassword)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	h.cookie.set(w, sess.RefreshToken, h.svc.RefreshTTL())
	respond.JSON(w, http.StatusOK, "Password updated successfully!", dto.LoginResponse{AccessToken: sess.AccessToken, User: sess.User})
}
