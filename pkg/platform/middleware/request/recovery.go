// Package request holds the HTTP middleware shared by every route: panic
// recovery, request ids, access logging, body limits and route latency.
package request

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"credregistry/pkg/platform/httputil"
	"credregistry/pkg/requestcontext"
)

// Recovery turns a handler panic into a 500 with the standard error body.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				ctx := r.Context()
				logger.ErrorContext(ctx, "handler panicked",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
					"stack", string(debug.Stack()),
				)
				httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "internal_error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
