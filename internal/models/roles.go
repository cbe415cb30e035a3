package models

import "time"

// RoleName is the unique name of a role.
type RoleName string

const (
	SuperAdmin    RoleName = "SUPERADMIN"
	Admin         RoleName = "ADMIN"
	AdminReviewer RoleName = "ADMIN_REVIEWER"
	Owner         RoleName = "OWNER"
	Manager       RoleName = "MANAGER"
	NormalUser    RoleName = "USER"
)

// RoleType tells which surface a role belongs to.
type RoleType string

const (
	RoleTypeAdminPanel RoleType = "ADMIN_PANEL"
	RoleTypePlatform   RoleType = "PLATFORM"
)

// AdminRoles may sign in through the admin login.
var AdminRoles = []RoleName{SuperAdmin, Admin, AdminReviewer}

// ValidRoleName reports whether name is one of the known role names.
func ValidRoleName(name RoleName) bool {
	switch name {
	case SuperAdmin, Admin, AdminReviewer, Owner, Manager, NormalUser:
		return true
	}
	return false
}

type Role struct {
	ID        int64     `json:"id"`
	Name      RoleName  `json:"name"`
	Type      RoleType  `json:"type,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultRoles are seeded into every fresh store.
var DefaultRoles = []Role{
	{Name: SuperAdmin, Type: RoleTypeAdminPanel},
	{Name: Admin, Type: RoleTypeAdminPanel},
	{Name: NormalUser, Type: RoleTypePlatform},
}
