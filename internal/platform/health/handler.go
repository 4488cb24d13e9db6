// Package health serves the liveness, readiness and status probes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"credregistry/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc reports whether a dependency (postgres, redis, kafka) is usable.
type CheckFunc func(ctx context.Context) error

const defaultCheckTimeout = 2 * time.Second

// Option configures a Handler.
type Option func(*Handler)

// WithCheckTimeout bounds each readiness check.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.checkTimeout = d
		}
	}
}

// Handler serves the probe endpoints.
type Handler struct {
	started      time.Time
	environment  string
	checkTimeout time.Duration
	draining     atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New returns a handler with no readiness checks.
func New(environment string, opts ...Option) *Handler {
	h := &Handler{
		started:      time.Now(),
		environment:  environment,
		checkTimeout: defaultCheckTimeout,
		checks:       make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCheck adds or replaces a named readiness check.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Drain makes readiness fail so load balancers stop routing here before the
// server shuts down. Liveness is unaffected.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// Register mounts the probe routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleLiveness answers 200 while the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ReadinessResponse is the body of /health/ready.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// HandleReadiness runs the checks concurrently, each under the check timeout,
// and answers 503 when any fails or the handler is draining.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "draining"})
		return
	}

	results := h.runChecks(r.Context())
	resp := ReadinessResponse{Status: "ready", Checks: results}
	status := http.StatusOK
	for _, res := range results {
		if res.Status != "up" {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	fns := make([]CheckFunc, 0, len(h.checks))
	for name, fn := range h.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	out := make([]CheckResult, len(fns))
	var g errgroup.Group
	for i, fn := range fns {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
			defer cancel()

			start := time.Now()
			err := fn(checkCtx)
			out[i] = CheckResult{Status: "up", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				out[i].Status = "down"
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // failures are carried in out

	results := make(map[string]CheckResult, len(names))
	for i, name := range names {
		results[name] = out[i]
	}
	return results
}

// StatusResponse is the body of /health.
type StatusResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	Environment   string   `json:"environment"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Timestamp     string   `json:"timestamp"`
	Checks        []string `json:"checks"`
}

// HandleStatus reports build, uptime and the names of registered checks
// without running them.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	slices.Sort(names)

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks:        names,
	})
}
