// Package requesttime stamps each request with one "now". Issuance, expiry
// checks and revocation inside a request all read the same instant.
package requesttime

import (
	"net/http"
	"time"

	"credregistry/pkg/requestcontext"
)

// Clock returns the current time.
type Clock func() time.Time

// Middleware stamps requests using the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps requests using clock. The stamp is UTC and truncated to the
// second, the resolution at which credentials record issuance and expiry.
func WithClock(clock Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock().UTC().Truncate(time.Second)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
		})
	}
}
