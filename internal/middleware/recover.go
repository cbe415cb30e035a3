package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/hongminglow/expense-be/internal/http/respond"
)

// Recover turns a handler panic into the standard 500 envelope.
func Recover(debugErrors bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			respond.Failure(w, r, &respond.PanicError{Value: rec, Stack: debug.Stack()}, debugErrors)
		}()
		next.ServeHTTP(w, r)
	})
}
