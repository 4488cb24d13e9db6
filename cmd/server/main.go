package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "credregistry/internal/jwt_token"
	"credregistry/internal/platform/config"
	"credregistry/internal/platform/database"
	"credregistry/internal/platform/health"
	"credregistry/internal/platform/kafka"
	"credregistry/internal/platform/kafka/producer"
	"credregistry/internal/platform/logger"
	platformredis "credregistry/internal/platform/redis"
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
	"credregistry/internal/verification/tracer"
	"credregistry/migrations"
	id "credregistry/pkg/domain"
	"credregistry/pkg/platform/middleware/auth"
	"credregistry/pkg/platform/middleware/request"
	"credregistry/pkg/platform/outbox"
	outboxmetrics "credregistry/pkg/platform/outbox/metrics"
	outboxmemory "credregistry/pkg/platform/outbox/store/memory"
	outboxpostgres "credregistry/pkg/platform/outbox/store/postgres"
	"credregistry/pkg/platform/outbox/worker"
	"credregistry/pkg/requestcontext"
)

const (
	shutdownTimeout     = 10 * time.Second
	cacheSweepInterval  = time.Minute
	poolStatsInterval   = 15 * time.Second
	topicPartitions     = 3
	topicReplication    = 1
	producerCloseWindow = 5 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.InfoContext(ctx, "initializing credential registry",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"kafka", cfg.KafkaBrokers != "",
		"oracle", cfg.OracleURL != "",
	)

	healthHandler := health.New(cfg.Environment)
	g, gctx := errgroup.WithContext(ctx)

	// Storage: Postgres when configured, otherwise the in-memory ledger.
	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL), database.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck // best-effort on shutdown

	registryOpts := []registry.Option{
		registry.WithLogger(log),
		registry.WithMetrics(registrymetrics.New(nil)),
		registry.WithOwnerOrganization(cfg.RegistryOwnerOrganization),
	}
	var (
		registryStore store.Store
		outboxStore   outbox.Store
	)
	if pool != nil {
		applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.InfoContext(ctx, "database migrated", "applied", applied)
		registryStore = store.NewPostgres(pool.DB())
		outboxStore = outboxpostgres.New(pool.DB())
		registryOpts = append(registryOpts, registry.WithTx(newRegistryPostgresTx(pool.DB())))
		healthHandler.RegisterCheck("postgres", pool.Health)
	} else {
		memOutbox := outboxmemory.New()
		registryStore = store.NewInMemoryStore(store.WithOutbox(memOutbox))
		outboxStore = memOutbox
		log.WarnContext(ctx, "DATABASE_URL not set, registry state is kept in memory")
	}

	// Verification result cache: Redis when configured, otherwise in-process.
	redisClient, err := platformredis.New(ctx, platformredis.DefaultConfig(cfg.RedisURL), nil)
	if err != nil {
		return err
	}
	var resultCache verification.ResultCache
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // best-effort on shutdown
		resultCache = cache.NewRedisCache(redisClient.Client, cfg.VerificationCacheTTL)
		healthHandler.RegisterCheck("redis", redisClient.Health)
		g.Go(func() error {
			redisClient.RunPoolStats(gctx, poolStatsInterval)
			return nil
		})
	} else {
		memCache := cache.NewInMemoryCache(cfg.VerificationCacheTTL)
		resultCache = memCache
		g.Go(func() error {
			return memCache.RunSweeper(gctx, cacheSweepInterval)
		})
	}

	// The registry invalidates through the verifier, which is built afterwards.
	var verifier *verification.Service
	registryOpts = append(registryOpts, registry.WithInvalidator(registry.InvalidatorFunc(
		func(ctx context.Context, code string) error {
			return verifier.Invalidate(ctx, code)
		},
	)))
	registryService := registry.New(registryStore, registryOpts...)

	verifierOpts := []verification.Option{
		verification.WithCache(resultCache),
		verification.WithThreshold(cfg.VerificationSimilarityThreshold),
		verification.WithOracleTimeout(cfg.OracleTimeout),
		verification.WithTracer(tracer.NewOTel()),
		verification.WithMetrics(verificationmetrics.New(nil)),
		verification.WithLogger(log),
	}
	if similarity := oracle.NewHTTP(oracle.Config{URL: cfg.OracleURL, Timeout: cfg.OracleTimeout, Logger: log}); similarity.Enabled() {
		verifierOpts = append(verifierOpts, verification.WithOracle(similarity))
	} else {
		log.WarnContext(ctx, "ORACLE_URL not set, image checks report oracle_unavailable")
	}
	verifier = verification.New(registryService, verifierOpts...)

	if err := bootstrapOwner(ctx, cfg, registryService, log); err != nil {
		return err
	}

	// Event publishing: the outbox worker drains registry events to Kafka.
	if cfg.KafkaBrokers != "" {
		stopPublishing, err := startPublishing(ctx, cfg, outboxStore, healthHandler, log)
		if err != nil {
			return err
		}
		defer stopPublishing()
	} else {
		log.WarnContext(ctx, "KAFKA_BROKERS not set, registry events stay in the outbox")
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, jwttoken.DefaultAudience, jwttoken.DefaultTokenTTL)
	router := httptransport.NewRouter(httptransport.Routes{
		Registry:       registryhandler.New(registryService, log),
		Verification:   verificationhandler.New(verifier, log),
		Health:         healthHandler,
		Metrics:        promhttp.Handler(),
		RequireAuth:    auth.RequireAuth(jwtService, log),
		Latency:        request.NewMetrics(nil),
		TrustedProxies: cfg.TrustedProxies,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	g.Go(func() error {
		log.InfoContext(gctx, "starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthHandler.Drain()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// bootstrapOwner makes REGISTRY_OWNER the owner on first start. Restarting with
// the same owner is a no-op.
func bootstrapOwner(ctx context.Context, cfg config.Server, svc *registry.Service, log *slog.Logger) error {
	if cfg.RegistryOwner == "" {
		log.WarnContext(ctx, "REGISTRY_OWNER not set, registry has no owner until one is configured")
		return nil
	}
	owner, err := id.ParseAddress(cfg.RegistryOwner)
	if err != nil {
		return fmt.Errorf("REGISTRY_OWNER: %w", err)
	}
	return svc.Bootstrap(requestcontext.WithTime(ctx, time.Now()), owner)
}

// startPublishing ensures the registry topic exists and starts the outbox worker.
// The returned func stops the worker and closes the Kafka clients.
func startPublishing(ctx context.Context, cfg config.Server, outboxStore outbox.Store, healthHandler *health.Handler, log *slog.Logger) (func(), error) {
	admin, err := kafka.NewAdmin(cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	if err := admin.EnsureTopic(ctx, cfg.KafkaRegistryTopic, topicPartitions, topicReplication); err != nil {
		admin.Close()
		return nil, err
	}
	healthHandler.RegisterCheck(admin.Name(), admin.Check)

	prod, err := producer.New(kafka.DefaultProducerConfig(cfg.KafkaBrokers, cfg.KafkaRegistryTopic), log)
	if err != nil {
		admin.Close()
		return nil, err
	}

	outboxWorker := worker.New(outboxStore, prod,
		worker.WithTopic(cfg.KafkaRegistryTopic),
		worker.WithPollInterval(cfg.OutboxPollInterval),
		worker.WithMetrics(outboxmetrics.New(nil)),
		worker.WithLogger(log),
	)
	outboxWorker.Start()
	log.InfoContext(ctx, "outbox worker started", "topic", cfg.KafkaRegistryTopic)

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := outboxWorker.Stop(stopCtx); err != nil {
			log.Error("outbox worker did not drain", "error", err)
		}
		prod.Close(producerCloseWindow)
		admin.Close()
	}, nil
}
