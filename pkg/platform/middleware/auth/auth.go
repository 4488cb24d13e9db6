// Package auth authenticates bearer tokens on the mutating registry routes.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/platform/httputil"
	"credregistry/pkg/requestcontext"
)

// Authenticator resolves a bearer token to the address of the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (id.Address, error)
}

var errMissingToken = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")

// RequireAuth rejects requests without a valid bearer token with 401 and
// stores the caller address in the request context. It only establishes who
// the caller is; owner and issuer checks belong to the registry service.
func RequireAuth(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "request without bearer token",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, errMissingToken)
				return
			}

			caller, err := authn.Authenticate(ctx, token)
			if err == nil && caller.IsNil() {
				err = dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
			}
			if err != nil {
				logger.WarnContext(ctx, "bearer token rejected",
					"error", err,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
