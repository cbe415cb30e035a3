package dto

import "github.com/hongminglow/expense-be/internal/models"

type CreateUserRequest struct {
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Username  string `json:"username" validate:"max=64"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=32"`
	Password  string `json:"password" validate:"max=72"`
	Role      *int64 `json:"role" validate:"omitempty,gt=0"`
}

type UpdateUserRequest struct {
	Role int64 `json:"role" validate:"required,gt=0"`
}

type UserListResponse struct {
	Users      []models.User `json:"users"`
	Total      int           `json:"totalUsers"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

type RoleRequest struct {
	Name string `json:"name" validate:"required,oneof=SUPERADMIN ADMIN ADMIN_REVIEWER OWNER MANAGER USER"`
	Type string `json:"type" validate:"omitempty,oneof=ADMIN_PANEL PLATFORM"`
}

type RoleResponse struct {
	Role models.Role `json:"role"`
}

type RolesResponse struct {
	Roles []models.Role `json:"roles"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type CategoryResponse struct {
	Category models.ExpenseCategory `json:"category"`
}

type CategoriesResponse struct {
	Categories []models.ExpenseCategory `json:"categories"`
}
