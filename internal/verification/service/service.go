// Package service implements the verification protocol: an on-ledger lookup,
// then an optional image check against the similarity oracle.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	registrymodels "credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	"credregistry/internal/verification/metrics"
	"credregistry/internal/verification/models"
	"credregistry/internal/verification/oracle"
	"credregistry/internal/verification/tracer"
	id "credregistry/pkg/domain"
	platformsync "credregistry/pkg/platform/sync"
	"credregistry/pkg/requestcontext"
)

// Registry answers on-ledger verification queries.
type Registry interface {
	VerifyCredential(ctx context.Context, code string) (*registrymodels.VerificationResult, error)
}

// Oracle scores an image against a credential fingerprint on a 0-100 scale.
type Oracle interface {
	Compare(ctx context.Context, reference id.Hash32, image []byte) (float64, error)
}

// ResultCache stores found ledger results by normalized code. Get reports a miss
// as sentinel.ErrNotFound. After MarkRevoked, Set must not store an unrevoked
// result for that code, even when called from another instance.
type ResultCache interface {
	Get(ctx context.Context, code string) (*registrymodels.VerificationResult, error)
	Set(ctx context.Context, code string, result *registrymodels.VerificationResult) error
	MarkRevoked(ctx context.Context, code string) error
}

const (
	DefaultThreshold     = 85.0
	DefaultOracleTimeout = 5 * time.Second

	batchConcurrency = 8
)

type Option func(*Service)

// Service runs verifications. It is safe for concurrent use.
type Service struct {
	registry      Registry
	oracle        Oracle
	cache         ResultCache
	locks         *platformsync.ShardedMutex
	threshold     float64
	oracleTimeout time.Duration
	tracer        tracer.Tracer
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(registry Registry, opts ...Option) *Service {
	s := &Service{
		registry:      registry,
		locks:         platformsync.NewShardedMutex(),
		threshold:     DefaultThreshold,
		oracleTimeout: DefaultOracleTimeout,
		tracer:        tracer.NewNoop(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithOracle enables image checks. Without it every image check reports
// oracle_unavailable.
func WithOracle(o Oracle) Option {
	return func(s *Service) {
		s.oracle = o
	}
}

func WithCache(c ResultCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithThreshold sets the minimum confidence (0-100) for a match.
func WithThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold >= 0 && threshold <= 100 {
			s.threshold = threshold
		}
	}
}

func WithOracleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.oracleTimeout = d
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Verify resolves one verification request. Errors are reserved for malformed
// codes and ledger failures; every other outcome is a Result with a reason.
func (s *Service) Verify(ctx context.Context, req models.Request) (result *models.Result, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.Bool(tracer.AttrHasImage, req.HasImage()))
	defer func() { span.End(err) }()

	code, err := registrymodels.NormalizeVerificationCode(req.VerificationCode)
	if err != nil {
		return nil, err
	}

	result = models.NewResult()
	onChain, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	result.OnChain = onChain
	s.enter(ctx, result, models.StateOnChainChecked)

	switch {
	case !onChain.Found():
		s.resolve(ctx, result, models.ReasonNotFound)
	case onChain.IsRevoked:
		s.resolve(ctx, result, models.ReasonRevoked)
	case !onChain.IsValid:
		s.resolve(ctx, result, models.ReasonExpired)
	case !req.HasImage():
		s.resolve(ctx, result, models.ReasonVerified)
	default:
		s.checkImage(ctx, result, req.Image)
	}

	span.SetAttributes(tracer.String(tracer.AttrReason, result.Reason.Label()))
	return result, nil
}

func (s *Service) checkImage(ctx context.Context, result *models.Result, image []byte) {
	confidence, err := s.compare(ctx, result.OnChain, image)
	s.enter(ctx, result, models.StateImageChecked)
	if err != nil {
		s.logger.WarnContext(ctx, "similarity oracle unavailable",
			"credential_id", result.OnChain.CredentialID,
			"category", oracle.Category(err),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.resolve(ctx, result, models.ReasonOracleUnavailable)
		return
	}

	result.Confidence = &confidence
	if confidence >= s.threshold {
		s.resolve(ctx, result, models.ReasonVerified)
		return
	}
	s.resolve(ctx, result, models.ReasonSimilarityTooLow)
}

// compare calls the oracle under the oracle timeout. Out-of-range scores are
// treated as oracle failures.
func (s *Service) compare(ctx context.Context, onChain *registrymodels.VerificationResult, image []byte) (confidence float64, err error) {
	if s.oracle == nil {
		return 0, oracle.NewError(oracle.ErrorDisabled, "no oracle configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, tracer.SpanOracleCompare,
		tracer.Int64(tracer.AttrCredentialID, int64(onChain.CredentialID)),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	confidence, err = s.oracle.Compare(ctx, onChain.CredentialHash, image)
	if err == nil && (math.IsNaN(confidence) || confidence < 0 || confidence > 100) {
		err = oracle.NewError(oracle.ErrorBadData, "confidence out of range", nil)
	}
	if s.metrics != nil {
		s.metrics.ObserveOracle(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && oracle.Category(err) != oracle.ErrorTimeout {
			err = oracle.NewError(oracle.ErrorTimeout, "oracle deadline exceeded", err)
		}
		if s.metrics != nil {
			s.metrics.IncOracleFailure(string(oracle.Category(err)))
		}
		span.SetAttributes(tracer.String(tracer.AttrOracleFailure, string(oracle.Category(err))))
		return 0, err
	}
	span.SetAttributes(tracer.Float64(tracer.AttrConfidence, confidence))
	return confidence, nil
}

// lookup returns the ledger result for code evaluated at the request time,
// serving found results from the cache when one is configured. The per-code
// lock collapses concurrent fills in this process; the cache itself refuses
// fills that lost a race with a revocation.
func (s *Service) lookup(ctx context.Context, code string) (result *registrymodels.VerificationResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerLookup)
	defer func() { span.End(err) }()
	start := time.Now()
	defer s.observeStep("ledger_lookup", start)

	if s.cache == nil {
		return s.registry.VerifyCredential(ctx, code)
	}

	s.locks.Lock(code)
	defer s.locks.Unlock(code)

	cached, err := s.cache.Get(ctx, code)
	switch {
	case err == nil:
		s.cacheHit(true)
		span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
		return cached.At(requestcontext.Now(ctx)), nil
	case errors.Is(err, sentinel.ErrNotFound):
		s.cacheHit(false)
	default:
		s.cacheError(ctx, "get", err)
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false))

	result, err = s.registry.VerifyCredential(ctx, code)
	if err != nil {
		return nil, err
	}
	// Unknown codes are not cached: the code may be issued at any moment.
	if result.Found() {
		if err := s.cache.Set(ctx, code, result); err != nil {
			s.cacheError(ctx, "set", err)
		}
	}
	return result, nil
}

// Invalidate marks a stored (already normalized) code revoked in the cache.
// It satisfies the registry's invalidation hook.
func (s *Service) Invalidate(ctx context.Context, code string) error {
	if s.cache == nil {
		return nil
	}
	return s.locks.WithLock(code, func() error {
		return s.cache.MarkRevoked(ctx, code)
	})
}

func (s *Service) enter(ctx context.Context, result *models.Result, state models.State) {
	result.Enter(state)
	s.logger.DebugContext(ctx, "verification state",
		"state", state,
		"credential_id", credentialIDOf(result),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) resolve(ctx context.Context, result *models.Result, reason models.Reason) {
	result.Resolve(reason)
	s.logger.DebugContext(ctx, "verification state",
		"state", models.StateResolved,
		"reason", reason.Label(),
		"credential_id", credentialIDOf(result),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncOutcome(reason.Label())
	}
}

func (s *Service) cacheHit(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit()
	} else {
		s.metrics.RecordCacheMiss()
	}
}

// cacheError logs a cache failure; the ledger stays authoritative.
func (s *Service) cacheError(ctx context.Context, operation string, err error) {
	if s.metrics != nil {
		s.metrics.IncCacheError(operation)
	}
	s.logger.WarnContext(ctx, "verification cache failure",
		"operation", operation,
		"error", err,
	)
}

func (s *Service) observeStep(step string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStep(step, time.Since(start).Seconds())
	}
}

func credentialIDOf(result *models.Result) id.CredentialID {
	if result.OnChain == nil {
		return 0
	}
	return result.OnChain.CredentialID
}
