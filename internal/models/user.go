package models

import "time"

// User captures application-facing fields for an account. Credential and
// token state lives in UserSecrets and is only loaded by the auth lookups.
type User struct {
	ID         int64         `json:"id"`
	FirstName  string        `json:"firstName"`
	LastName   string        `json:"lastName"`
	Username   string        `json:"username"`
	Email      string        `json:"email"`
	Phone      string        `json:"phone,omitempty"`
	Role       *Role         `json:"role,omitempty"`
	IsVerified bool          `json:"isVerified"`
	Images     ProfileImages `json:"images"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	IsDeleted  bool          `json:"-"`
}

// ProfileImages holds the public URLs of the resized avatar variants.
type ProfileImages struct {
	Small  string `json:"small,omitempty"`
	Medium string `json:"medium,omitempty"`
	Large  string `json:"large,omitempty"`
}

// RoleName returns the user's role name or an empty string when unassigned.
func (u User) RoleName() RoleName {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// UserSecrets is the write-mostly state of an account that must never be
// serialized.
type UserSecrets struct {
	PasswordHash      string
	PasswordChangedAt *time.Time
	RefreshToken      string
	ResetTokenHash    string
	ResetTokenExpires *time.Time
}

// AuthRecord pairs a user with its secrets for credential checks.
type AuthRecord struct {
	User    User
	Secrets UserSecrets
}

// PasswordChangedAfter reports whether the password changed after the given
// token issue time. Comparison is done at second precision like JWT iat.
func (s UserSecrets) PasswordChangedAfter(issuedAt time.Time) bool {
	if s.PasswordChangedAt == nil {
		return false
	}
	return s.PasswordChangedAt.Unix() > issuedAt.Unix()
}

// NewUser is the input for creating an account.
type NewUser struct {
	FirstName    string
	LastName     string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	RoleID       *int64
	IsVerified   bool
}
