package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
	"github.com/hongminglow/expense-be/internal/storage"
)

const (
	msgCategoryNotFound = "No expense category found with that ID."
	msgCategoryExists   = "An expense category with this name already exists."
	msgCategoryName     = "Expense category name is required."
)

// CategoryHandler serves expense categories. Reads need a login, writes need
// SUPERADMIN or ADMIN.
type CategoryHandler struct {
	categories storage.CategoryStore
	guards     Guards
}

// NewCategoryHandler constructs the handler.
func NewCategoryHandler(categories storage.CategoryStore, guards Guards) *CategoryHandler {
	return &CategoryHandler{categories: categories, guards: guards}
}

// Register attaches the category routes to the mux.
func (h *CategoryHandler) Register(mux *http.ServeMux) {
	g := h.guards
	managers := []models.RoleName{models.SuperAdmin, models.Admin}
	mux.Handle("GET "+APIPrefix+"/expense-categories", g.protected(h.handleList))
	mux.Handle("GET "+APIPrefix+"/expense-categories/{id}", g.protected(h.handleGet))
	mux.Handle("POST "+APIPrefix+"/expense-categories", g.protected(h.handleCreate, managers...))
	mux.Handle("PATCH "+APIPrefix+"/expense-categories/{id}", g.protected(h.handleRename, managers...))
	mux.Handle("DELETE "+APIPrefix+"/expense-categories/{id}", g.protected(h.handleDelete, managers...))
}

// CategoryName normalizes a category name to trimmed upper case.
func CategoryName(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func (h *CategoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	deleted := r.URL.Query().Get("isDeleted") == "true"
	categories, err := h.categories.ListCategories(r.Context(), deleted)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	if categories == nil {
		categories = []models.ExpenseCategory{}
	}
	respond.JSON(w, http.StatusOK, "Expense categories fetched successfully.", dto.CategoriesResponse{Categories: categories})
}

func (h *CategoryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	category, err := h.categories.FindCategory(r.Context(), id)
	if err != nil {
		h.guards.fail(w, r, notFound(err, msgCategoryNotFound))
		return
	}
	respond.JSON(w, http.StatusOK, "Expense category fetched successfully.", dto.CategoryResponse{Category: category})
}

func (h *CategoryHandler) readName(w http.ResponseWriter, r *http.Request) (string, error) {
	var req dto.CategoryRequest
	if err := decode(w, r, &req); err != nil {
		return "", err
	}
	name := CategoryName(req.Name)
	if name == "" {
		return "", apperr.Validation(msgCategoryName)
	}
	return name, nil
}

func (h *CategoryHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	name, err := h.readName(w, r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	category, err := h.categories.CreateCategory(r.Context(), name)
	if err != nil {
		h.guards.fail(w, r, categoryError(err))
		return
	}
	respond.JSON(w, http.StatusCreated, "Expense category created successfully.", dto.CategoryResponse{Category: category})
}

func (h *CategoryHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	name, err := h.readName(w, r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	category, err := h.categories.RenameCategory(r.Context(), id, name)
	if err != nil {
		h.guards.fail(w, r, categoryError(err))
		return
	}
	respond.JSON(w, http.StatusOK, "Expense category updated successfully.", dto.CategoryResponse{Category: category})
}

func (h *CategoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	category, err := h.categories.SoftDeleteCategory(r.Context(), id)
	if err != nil {
		h.guards.fail(w, r, categoryError(err))
		return
	}
	respond.JSON(w, http.StatusOK, "Expense category deleted successfully.", dto.CategoryResponse{Category: category})
}

func categoryError(err error) error {
	if errors.Is(err, storage.ErrAlreadyExists) {
		return apperr.Conflict(msgCategoryExists).WithCause(err)
	}
	return notFound(err, msgCategoryNotFound)
}
