package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// InternalError is the body written when a handler panics and no other
// body was configured.
var InternalError = map[string]string{"error": "internal_error"}

// RecoverMiddleware turns a handler panic into a logged error and a JSON 500.
// The stack goes to the log only; the client sees body.
func RecoverMiddleware(logger *slog.Logger, body any) func(http.Handler) http.Handler {
	if body == nil {
		body = InternalError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
				AddLogField(r.Context(), "panic", fmt.Sprint(rec))
				WriteJSON(w, http.StatusInternalServerError, body)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
