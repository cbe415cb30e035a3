package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/auth"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
	"github.com/hongminglow/expense-be/internal/storage"
)

const msgUserNotFound = "No user found with that ID."

// AccountCreator creates accounts on behalf of an administrator.
type AccountCreator interface {
	CreateAccount(ctx context.Context, in auth.AccountInput) (models.User, error)
}

// UserHandler serves the administrative user management routes.
type UserHandler struct {
	users    storage.UserStore
	roles    storage.RoleStore
	accounts AccountCreator
	guards   Guards
}

// NewUserHandler constructs the handler.
func NewUserHandler(users storage.UserStore, roles storage.RoleStore, accounts AccountCreator, guards Guards) *UserHandler {
	return &UserHandler{users: users, roles: roles, accounts: accounts, guards: guards}
}

// Register attaches the user management routes to the mux.
func (h *UserHandler) Register(mux *http.ServeMux) {
	g := h.guards
	managers := []models.RoleName{models.SuperAdmin, models.Admin}
	mux.Handle("GET "+APIPrefix+"/users", g.protected(h.handleList, models.SuperAdmin))
	mux.Handle("POST "+APIPrefix+"/users", g.protected(h.handleCreate, managers...))
	mux.Handle("GET "+APIPrefix+"/users/{id}", g.protected(h.handleGet, managers...))
	mux.Handle("PUT "+APIPrefix+"/users/{id}", g.protected(h.handleUpdate, managers...))
	mux.Handle("PATCH "+APIPrefix+"/users/{id}", g.protected(h.handleUpdate, managers...))
	mux.Handle("DELETE "+APIPrefix+"/users/{id}", g.protected(h.handleDelete, managers...))
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	page, pageNo, err := pageParams(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	users, total, err := h.users.ListUsers(r.Context(), page)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	respond.JSON(w, http.StatusOK, "Users fetched successfully.", dto.UserListResponse{
		Users:      users,
		Total:      total,
		Page:       pageNo,
		Limit:      page.Limit,
		TotalPages: (total + page.Limit - 1) / page.Limit,
	})
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.accounts.CreateAccount(r.Context(), auth.AccountInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		RoleID:    req.Role,
	})
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "User created successfully!", dto.UserResponse{User: user})
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		h.guards.fail(w, r, notFound(err, msgUserNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, "User data fetched successfully.", dto.UserResponse{User: user})
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	var req dto.UpdateUserRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if _, err := h.roles.FindRole(r.Context(), req.Role); err != nil {
		h.guards.fail(w, r, notFoundAs(err, apperr.Validation(auth.MsgRoleNotFound)))
		return
	}
	user, err := h.users.AssignRole(r.Context(), id, req.Role)
	if err != nil {
		h.guards.fail(w, r, notFound(err, msgUserNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, "User updated successfully!", dto.UserResponse{User: user})
}

func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.users.SoftDeleteUser(r.Context(), id)
	if err != nil {
		h.guards.fail(w, r, notFound(err, msgUserNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, "User deleted successfully!", dto.UserResponse{User: user})
}

// notFound turns storage.ErrNotFound into a 404 with msg and passes other
// errors through.
func notFound(err error, msg string) error {
	return notFoundAs(err, apperr.NotFound(msg))
}

func notFoundAs(err error, replacement *apperr.Error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return replacement.WithCause(err)
	}
	return err
}
