package dto

import "github.com/hongminglow/expense-be/internal/models"

// SignupRequest only carries format limits; required fields are checked by
// the auth service so every flow reports them the same way.
type SignupRequest struct {
	FirstName       string `json:"firstName" validate:"max=100"`
	LastName        string `json:"lastName" validate:"max=100"`
	Username        string `json:"username" validate:"max=64"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"max=32"`
	Password        string `json:"password" validate:"max=72"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// LoginRequest takes one identifier matched against username or email.
// Username and Email are accepted as aliases of UserID.
type LoginRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identifier returns the first non-empty identifier field.
func (r LoginRequest) Identifier() string {
	return firstNonEmpty(r.UserID, r.Username, r.Email)
}

type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type ForgotPasswordRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Identifier returns the first non-empty identifier field.
func (r ForgotPasswordRequest) Identifier() string {
	return firstNonEmpty(r.UserID, r.Email, r.Username)
}

type UpdatePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword" validate:"max=72"`
}

type UserResponse struct {
	User models.User `json:"user"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
