package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/expenses"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
)

const msgInvalidExpenseDate = "expenseDate must be YYYY-MM-DD or an RFC 3339 timestamp."

// ExpenseService is the owner-scoped expense engine.
type ExpenseService interface {
	List(ctx context.Context, ownerID int64, q expenses.ListQuery) (expenses.ListResult, error)
	Stats(ctx context.Context, ownerID int64, days int) (models.ExpenseStats, error)
	Insights(ctx context.Context, ownerID int64, days int) (models.ExpenseInsights, error)
	Create(ctx context.Context, ownerID int64, in expenses.Input) (models.Expense, error)
	Get(ctx context.Context, ownerID, id int64) (models.Expense, error)
	Update(ctx context.Context, ownerID, id int64, p models.ExpensePatch) (models.Expense, error)
	Delete(ctx context.Context, ownerID, id int64) (models.Expense, error)
}

// ExpenseHandler serves the caller's own expenses.
type ExpenseHandler struct {
	svc    ExpenseService
	loc    *time.Location
	guards Guards
}

// NewExpenseHandler constructs the handler. loc interprets bare dates.
func NewExpenseHandler(svc ExpenseService, loc *time.Location, guards Guards) *ExpenseHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExpenseHandler{svc: svc, loc: loc, guards: guards}
}

// Register attaches the expense routes to the mux.
func (h *ExpenseHandler) Register(mux *http.ServeMux) {
	g := h.guards
	mux.Handle("GET "+APIPrefix+"/expenses", g.protected(h.handleList))
	mux.Handle("POST "+APIPrefix+"/expenses", g.protected(h.handleCreate))
	mux.Handle("GET "+APIPrefix+"/expenses/stats/{days}", g.protected(h.handleStats))
	mux.Handle("GET "+APIPrefix+"/expenses/top-expense/{days}", g.protected(h.handleInsights))
	mux.Handle("GET "+APIPrefix+"/expenses/{id}", g.protected(h.handleGet))
	mux.Handle("PUT "+APIPrefix+"/expenses/{id}", g.protected(h.handleUpdate))
	mux.Handle("PATCH "+APIPrefix+"/expenses/{id}", g.protected(h.handleUpdate))
	mux.Handle("DELETE "+APIPrefix+"/expenses/{id}", g.protected(h.handleDelete))
}

func (h *ExpenseHandler) handleList(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	q, err := expenses.ParseListQuery(r.URL.Query(), h.loc)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	res, err := h.svc.List(r.Context(), me.ID, q)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, res.Message, res)
}

func (h *ExpenseHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	days, err := expenses.ParseDays(r.PathValue("days"))
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), me.ID, days)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Expense stats fetched successfully.", stats)
}

func (h *ExpenseHandler) handleInsights(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	days, err := expenses.ParseDays(r.PathValue("days"))
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	insights, err := h.svc.Insights(r.Context(), me.ID, days)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Top expenses fetched successfully.", insights)
}

func (h *ExpenseHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	var req dto.CreateExpenseRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	in := expenses.Input{
		Title:           req.Title,
		CategoryID:      req.ExpenseCategory,
		SubCategory:     req.SubCategory,
		Amount:          *req.Amount,
		TransactionType: models.TransactionType(req.TransactionType),
		Description:     req.Description,
		File:            req.File,
	}
	if req.ExpenseDate != "" {
		if in.ExpenseDate, err = h.parseDate(req.ExpenseDate); err != nil {
			h.guards.fail(w, r, err)
			return
		}
	}
	exp, err := h.svc.Create(r.Context(), me.ID, in)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "Expense added successfully.", dto.ExpenseResponse{Expense: exp})
}

func (h *ExpenseHandler) parseDate(raw string) (time.Time, error) {
	t, _, err := expenses.ParseDate(raw, h.loc)
	if err != nil {
		return time.Time{}, apperr.Validation(msgInvalidExpenseDate).WithCause(err)
	}
	return t, nil
}

func (h *ExpenseHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	exp, err := h.svc.Get(r.Context(), me.ID, id)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Expense fetched successfully.", dto.ExpenseResponse{Expense: exp})
}

func (h *ExpenseHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	var req dto.UpdateExpenseRequest
	if err := decode(w, r, &req); err != nil {
		h.guards.fail(w, r, err)
		return
	}
	patch := models.ExpensePatch{
		Title:       req.Title,
		CategoryID:  req.ExpenseCategory,
		SubCategory: req.SubCategory,
		Amount:      req.Amount,
		Description: req.Description,
		File:        req.File,
	}
	if req.TransactionType != nil {
		tt := models.TransactionType(*req.TransactionType)
		patch.TransactionType = &tt
	}
	if req.ExpenseDate != nil {
		d, err := h.parseDate(*req.ExpenseDate)
		if err != nil {
			h.guards.fail(w, r, err)
			return
		}
		patch.ExpenseDate = &d
	}
	exp, err := h.svc.Update(r.Context(), me.ID, id, patch)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Expense updated successfully.", dto.ExpenseResponse{Expense: exp})
}

func (h *ExpenseHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	exp, err := h.svc.Delete(r.Context(), me.ID, id)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Expense deleted successfully.", dto.ExpenseResponse{Expense: exp})
}
