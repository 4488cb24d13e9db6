package request

import (
	"net/http"

	"github.com/google/uuid"

	"credregistry/pkg/requestcontext"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	// MaxRequestIDLength bounds a client supplied request id.
	MaxRequestIDLength = 128
)

// RequestID propagates a client supplied X-Request-ID when it is safe to log,
// and otherwise mints a UUID. The id is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if !safeRequestID(rid) {
			rid = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), rid)))
	})
}

// safeRequestID accepts [A-Za-z0-9._-]{1,128}.
func safeRequestID(rid string) bool {
	if rid == "" || len(rid) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(rid); i++ {
		switch c := rid[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
