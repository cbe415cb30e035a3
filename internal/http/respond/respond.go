// Package respond renders the JSON envelopes shared by every endpoint and is
// the single place where errors become HTTP responses.
package respond

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/logger"
)

// Envelope is the success wrapper.
type Envelope struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorEnvelope is the failure wrapper. Error and Stack are only filled
// outside production.
type ErrorEnvelope struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// MsgUnexpected is shown for every non-operational failure.
const MsgUnexpected = "Something went wrong."

// PanicError carries a recovered panic to Failure.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// JSON writes a success response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{OK: true, Status: "success", Message: message, Data: data})
}

// Failure renders err. Operational errors keep their status and message;
// anything else is logged and reported as a generic 500. With debug set the
// cause and any panic stack are included.
func Failure(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	env := ErrorEnvelope{OK: false}
	status := http.StatusInternalServerError

	if appErr, ok := apperr.As(err); ok {
		status = appErr.Status
		env.Message = appErr.Message
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error().Err(err).Str("kind", string(appErr.Kind)).Msg("operational failure")
		}
	} else {
		env.Message = MsgUnexpected
		event := logger.FromContext(r.Context()).Error().Err(err)
		if p, ok := err.(*PanicError); ok {
			event = event.Bytes("stack", p.Stack)
		}
		event.Msg("unexpected error")
	}

	if debug && err != nil {
		env.Error = err.Error()
		if p, ok := err.(*PanicError); ok {
			env.Stack = string(p.Stack)
		}
	}
	write(w, status, env)
}

func write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.Error().Err(err).Msg("respond: encode payload failed")
	}
}
