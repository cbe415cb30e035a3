package handlers

import (
	"net/http"
	"time"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/http/respond"
)

// HealthHandler returns uptime and basic status.
type HealthHandler struct {
	startedAt time.Time
	ping      func(*http.Request) error
}

// NewHealthHandler creates a health endpoint handler. ping, when set, checks
// the database.
func NewHealthHandler(startedAt time.Time, ping func(*http.Request) error) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, ping: ping}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handle)
	mux.HandleFunc("GET "+APIPrefix+"/{$}", h.handleHello)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r); err != nil {
			respond.Failure(w, r, apperr.New(apperr.KindExternal, http.StatusServiceUnavailable, "Database is unreachable.").WithCause(err), false)
			return
		}
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

func (h *HealthHandler) handleHello(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, "Hello from the expense tracker API", nil)
}
