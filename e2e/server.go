package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "credregistry/internal/jwt_token"
	"credregistry/internal/platform/health"
	registryhandler "credregistry/internal/registry/handler"
	registrymetrics "credregistry/internal/registry/metrics"
	registry "credregistry/internal/registry/service"
	"credregistry/internal/registry/store"
	httptransport "credregistry/internal/transport/http"
	"credregistry/internal/verification/cache"
	verificationhandler "credregistry/internal/verification/handler"
	verificationmetrics "credregistry/internal/verification/metrics"
	"credregistry/internal/verification/oracle"
	verification "credregistry/internal/verification/service"
	"credregistry/pkg/platform/middleware/auth"
	"credregistry/pkg/platform/middleware/request"
)

const (
	testSigningKey = "e2e-signing-key"
	testIssuer     = "credregistry-e2e"
	oracleTimeout  = 200 * time.Millisecond
)

// fakeOracle answers similarity requests with a fixed confidence, or stalls until
// the caller gives up.
type fakeOracle struct {
	mu         sync.Mutex
	confidence float64
	stall      bool
}

func (o *fakeOracle) set(confidence float64, stall bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confidence, o.stall = confidence, stall
}

func (o *fakeOracle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	confidence, stall := o.confidence, o.stall
	o.mu.Unlock()

	if stall {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]float64{"confidence": confidence}) //nolint:errcheck // test server
}

// testServer is the full HTTP stack over in-memory storage.
type testServer struct {
	api      *httptest.Server
	oracle   *httptest.Server
	fake     *fakeOracle
	jwt      *jwttoken.JWTService
	registry *registry.Service
}

func newTestServer() *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	fake := &fakeOracle{confidence: 100}
	oracleSrv := httptest.NewServer(fake)

	var verifier *verification.Service
	registryService := registry.New(store.NewInMemoryStore(),
		registry.WithLogger(logger),
		registry.WithMetrics(registrymetrics.New(reg)),
		registry.WithInvalidator(registry.InvalidatorFunc(func(ctx context.Context, code string) error {
			return verifier.Invalidate(ctx, code)
		})),
	)
	verifier = verification.New(registryService,
		verification.WithCache(cache.NewInMemoryCache(time.Minute)),
		verification.WithOracle(oracle.NewHTTP(oracle.Config{URL: oracleSrv.URL, Timeout: oracleTimeout, Logger: logger})),
		verification.WithOracleTimeout(oracleTimeout),
		verification.WithMetrics(verificationmetrics.New(reg)),
		verification.WithLogger(logger),
	)

	jwtService := jwttoken.NewJWTService(testSigningKey, testIssuer, jwttoken.DefaultAudience, time.Hour)
	router := httptransport.NewRouter(httptransport.Routes{
		Registry:     registryhandler.New(registryService, logger),
		Verification: verificationhandler.New(verifier, logger),
		Health:       health.New("e2e"),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequireAuth:  auth.RequireAuth(jwtService, logger),
		Latency:      request.NewMetrics(reg),
	}, logger)

	return &testServer{
		api:      httptest.NewServer(router),
		oracle:   oracleSrv,
		fake:     fake,
		jwt:      jwtService,
		registry: registryService,
	}
}

func (s *testServer) Close() {
	s.api.Close()
	s.oracle.Close()
}
