package handlers

import (
	"errors"
	"net/http"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
	"github.com/hongminglow/expense-be/internal/storage"
)

const (
	msgRoleNotFound = "No role found with that ID."
	msgRoleExists   = "A role with this name already exists."
	msgRoleInUse    = "This role is still assigned to users."
)

// RoleHandler serves role management. Listing is public, everything else
// needs SUPERADMIN.
type RoleHandler struct {
	roles  storage.RoleStore
	guards Guards
}

// NewRoleHandler constructs the handler.
func NewRoleHandler(roles storage.RoleStore, guards Guards) *RoleHandler {
	return &RoleHandler{roles: roles, guards: guards}
}

// Register attaches the role routes to the mux.
func (h *RoleHandler) Register(mux *http.ServeMux) {
	g := h.guards
	mux.HandleFunc("GET "+APIPrefix+"/roles", h.handleList)
	mux.Handle("POST "+APIPrefix+"/roles", g.protected(h.handleCreate, models.SuperAdmin))
	mux.Handle("GET "+APIPrefix+"/roles/{id}", g.protected(h.handleGet, models.SuperAdmin))
	mux.Handle("PATCH "+APIPrefix+"/roles/{id}", g.protected(h.handleUpdate, models.SuperAdmin))
	mux.Handle("DELETE "+APIPrefix+"/roles/{id}", g.protected(h.handleDelete, models.SuperAdmin))
}

func (h *RoleHandler) handleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []models.Role{}
	}
	respond.JSON(w, http.StatusOK, "Roles fetched successfully!", dto.RolesResponse{Roles: roles})
}

func (h *RoleHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	role, err := h.roles.FindRole(r.Context(), id)
	if err != nil {
		h.guards.fail(w, r, notFound(err, msgRoleNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, "Role fetched successfully!", dto.RoleResponse{Role: role})
}

func (h *RoleHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.RoleRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	role, err := h.roles.CreateRole(r.Context(), models.Role{Name: models.RoleName(req.Name), Type: models.RoleType(req.Type)})
	if err != nil {
		h.guards.fail(w, r, roleError(err))
		return
	}
	respond.JSON(w, http.StatusCreated, "Role created successfully!", dto.RoleResponse{Role: role})
}

func (h *RoleHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	var req dto.RoleRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	role, err := h.roles.UpdateRole(r.Context(), models.Role{ID: id, Name: models.RoleName(req.Name), Type: models.RoleType(req.Type)})
	if err != nil {
		h.guards.fail(w, r, roleError(err))
		return
	}
	respond.JSON(w, http.StatusOK, "Role updated successfully!", dto.RoleResponse{Role: role})
}

func (h *RoleHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if err := h.roles.DeleteRole(r.Context(), id); err != nil {
		h.guards.fail(w, r, roleError(err))
		return
	}
	respond.JSON(w, http.StatusOK, "Role deleted successfully!", nil)
}

func roleError(err error) error {
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperr.Conflict(msgRoleExists).WithCause(err)
	case errors.Is(err, storage.ErrInUse):
		return apperr.Conflict(msgRoleInUse).WithCause(err)
	}
	return notFound(err, msgRoleNotFound)
}
