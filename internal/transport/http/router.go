package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"credregistry/internal/platform/health"
	registryhandler "credregistry/internal/registry/handler"
	verificationhandler "credregistry/internal/verification/handler"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/platform/httputil"
	"credregistry/pkg/platform/middleware/metadata"
	"credregistry/pkg/platform/middleware/request"
	"credregistry/pkg/platform/middleware/requesttime"
	"credregistry/pkg/platform/validation"
)

const (
	DefaultRequestTimeout = 30 * time.Second
)

// Routes collects the handlers mounted by NewRouter. Nil handlers are skipped.
type Routes struct {
	Registry     *registryhandler.Handler
	Verification *verificationhandler.Handler
	Health       *health.Handler

	// Metrics serves the Prometheus scrape endpoint.
	Metrics     http.Handler
	RequireAuth func(http.Handler) http.Handler
	Latency     *request.Metrics
	Timeout     time.Duration

	// TrustedProxies may set X-Forwarded-For. Empty means the socket address is the client.
	TrustedProxies []netip.Prefix
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	timeout := routes.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: routes.TrustedProxies}).Handler)
	r.Use(request.Logger(logger))
	r.Use(request.Timeout(timeout))
	r.Use(request.ContentTypeJSON)
	r.Use(request.LatencyMiddleware(routes.Latency))
	r.Use(requesttime.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})

	if routes.Health != nil {
		routes.Health.Register(r)
	}
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}
	if routes.Registry != nil {
		requireAuth := routes.RequireAuth
		if requireAuth == nil {
			requireAuth = denyAll
		}
		r.Group(func(r chi.Router) {
			r.Use(request.BodyLimit(validation.MaxRegistryBodySize))
			routes.Registry.Register(r, requireAuth)
		})
	}
	if routes.Verification != nil {
		routes.Verification.Register(r)
	}
	return r
}

// denyAll guards mutations when no token validator is configured.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication is not configured"))
	})
}
