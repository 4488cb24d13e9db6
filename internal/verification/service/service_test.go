package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	registrymodels "credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	"credregistry/internal/verification/metrics"
	"credregistry/internal/verification/models"
	"credregistry/internal/verification/oracle"
	"credregistry/internal/verification/service/mocks"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
	fixtures "credregistry/pkg/testutil"
)

type VerifySuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockRegistry *mocks.MockRegistry
	mockOracle   *mocks.MockOracle
	metrics      *metrics.Metrics
	service      *Service
}

func (s *VerifySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRegistry = mocks.NewMockRegistry(s.ctrl)
	s.mockOracle = mocks.NewMockOracle(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService()
}

func (s *VerifySuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestVerifySuite(t *testing.T) {
	suite.Run(t, new(VerifySuite))
}

func (s *VerifySuite) newService(opts ...Option) *Service {
	base := []Option{
		WithOracle(s.mockOracle),
		WithOracleTimeout(50 * time.Millisecond),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(s.mockRegistry, append(base, opts...)...)
}

func (s *VerifySuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), fixtures.FixedTime)
}

// onChain returns the ledger verdict for a credential issued at FixedTime.
func onChain(credentialID id.CredentialID, code string, mutate func(*registrymodels.Credential)) *registrymodels.VerificationResult {
	credential := fixtures.NewCredential(fixtures.TestAddresses.Issuer1, fixtures.TestAddresses.Holder1, code)
	credential.ID = credentialID
	if mutate != nil {
		mutate(credential)
	}
	return registrymodels.ResultFor(credential, fixtures.FixedTime)
}

func expiringAt(t time.Time) func(*registrymodels.Credential) {
	return func(c *registrymodels.Credential) { c.ExpiresAt = &t }
}

func revokedAt(t time.Time) func(*registrymodels.Credential) {
	return func(c *registrymodels.Credential) {
		c.Revoked = true
		c.RevokedAt = &t
	}
}

func (s *VerifySuite) TestOnChainOutcomes() {
	tests := []struct {
		name         string
		ledger       *registrymodels.VerificationResult
		reason       models.Reason
		credentialID id.CredentialID
	}{
		{
			name:   "unknown code",
			ledger: registrymodels.NotFoundResult(),
			reason: models.ReasonNotFound,
		},
		{
			name:         "revoked",
			ledger:       onChain(1, "CODE-1", revokedAt(fixtures.FixedTime.Add(-time.Minute))),
			reason:       models.ReasonRevoked,
			credentialID: 1,
		},
		{
			name: "revoked takes precedence over expired",
			ledger: onChain(2, "CODE-2", func(c *registrymodels.Credential) {
				expiringAt(fixtures.FixedTime.Add(-time.Hour))(c)
				revokedAt(fixtures.FixedTime.Add(-time.Minute))(c)
			}),
			reason:       models.ReasonRevoked,
			credentialID: 2,
		},
		{
			name:         "expired",
			ledger:       onChain(3, "CODE-3", expiringAt(fixtures.FixedTime)),
			reason:       models.ReasonExpired,
			credentialID: 3,
		},
		{
			name:         "valid without image",
			ledger:       onChain(4, "CODE-4", nil),
			reason:       models.ReasonVerified,
			credentialID: 4,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE").Return(tt.ledger, nil)

			result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "0xCODE", Image: imageIf(tt.reason != models.ReasonVerified)})

			s.Require().NoError(err)
			s.Equal(tt.reason, result.Reason)
			s.Equal(tt.reason == models.ReasonVerified, result.Verified)
			s.Equal(tt.credentialID, result.OnChain.CredentialID)
			s.Nil(result.Confidence)
			s.Equal([]models.State{models.StateSubmitted, models.StateOnChainChecked, models.StateResolved}, result.Trail)
		})
	}
}

// imageIf attaches an image to requests that must be resolved before the
// oracle is consulted; the mock oracle has no expectations, so a call fails.
func imageIf(attach bool) []byte {
	if attach {
		return []byte("png")
	}
	return nil
}

func (s *VerifySuite) TestImageCheck() {
	ledger := onChain(7, "CODE-1", nil)

	s.Run("match at or above the threshold is verified", func() {
		for _, confidence := range []float64{85, 97.5} {
			s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
			s.mockOracle.EXPECT().Compare(gomock.Any(), ledger.CredentialHash, []byte("png")).Return(confidence, nil)

			result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

			s.Require().NoError(err)
			s.True(result.Verified)
			s.Equal(models.ReasonVerified, result.Reason)
			s.Require().NotNil(result.Confidence)
			s.Equal(confidence, *result.Confidence)
			s.Equal([]models.State{
				models.StateSubmitted, models.StateOnChainChecked, models.StateImageChecked, models.StateResolved,
			}, result.Trail)
		}
	})

	s.Run("low confidence is similarity_too_low", func() {
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
		s.mockOracle.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(40.0, nil)

		result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

		s.Require().NoError(err)
		s.False(result.Verified)
		s.Equal(models.ReasonSimilarityTooLow, result.Reason)
		s.Require().NotNil(result.Confidence)
		s.Equal(40.0, *result.Confidence)
	})

	s.Run("oracle timeout is oracle_unavailable", func() {
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
		s.mockOracle.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ id.Hash32, _ []byte) (float64, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			})

		result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

		s.Require().NoError(err)
		s.False(result.Verified)
		s.Equal(models.ReasonOracleUnavailable, result.Reason)
		s.Nil(result.Confidence)
		s.EqualValues(7, result.OnChain.CredentialID, "on-chain fields survive an oracle failure")
		s.True(result.OnChain.IsValid)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.OracleFailures.WithLabelValues(string(oracle.ErrorTimeout))))
	})

	s.Run("out of range confidence is oracle_unavailable", func() {
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
		s.mockOracle.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(150.0, nil)

		result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

		s.Require().NoError(err)
		s.Equal(models.ReasonOracleUnavailable, result.Reason)
		s.Nil(result.Confidence)
	})

	s.Run("oracle error is oracle_unavailable", func() {
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
		s.mockOracle.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(0.0, oracle.NewError(oracle.ErrorOutage, "down", nil))

		result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

		s.Require().NoError(err)
		s.Equal(models.ReasonOracleUnavailable, result.Reason)
	})
}

func (s *VerifySuite) TestThresholdIsConfigurable() {
	svc := s.newService(WithThreshold(95))
	ledger := onChain(1, "CODE-1", nil)
	s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
	s.mockOracle.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(90.0, nil)

	result, err := svc.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

	s.Require().NoError(err)
	s.Equal(models.ReasonSimilarityTooLow, result.Reason)
}

func (s *VerifySuite) TestWithoutOracleImagesAreUnavailable() {
	svc := New(s.mockRegistry, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(onChain(1, "CODE-1", nil), nil)

	result, err := svc.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1", Image: []byte("png")})

	s.Require().NoError(err)
	s.Equal(models.ReasonOracleUnavailable, result.Reason)
}

func (s *VerifySuite) TestErrors() {
	s.Run("blank code never reaches the ledger", func() {
		_, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "  "})

		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("ledger failure is returned", func() {
		ledgerErr := dErrors.New(dErrors.CodeUnavailable, "look up verification code: backend unavailable")
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(nil, ledgerErr)

		_, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1"})

		s.ErrorIs(err, ledgerErr)
	})
}

func (s *VerifySuite) TestOutcomeMetrics() {
	s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "NOPE").Return(registrymodels.NotFoundResult(), nil)

	_, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "NOPE"})

	s.Require().NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues("not_found")))
}

type CacheSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockRegistry *mocks.MockRegistry
	mockCache    *mocks.MockResultCache
	metrics      *metrics.Metrics
	service      *Service
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRegistry = mocks.NewMockRegistry(s.ctrl)
	s.mockCache = mocks.NewMockResultCache(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.mockRegistry,
		WithCache(s.mockCache),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *CacheSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CacheSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), fixtures.FixedTime)
}

func (s *CacheSuite) TestHitSkipsTheLedgerAndReevaluatesExpiry() {
	// Cached while valid; the request time is past its expiry.
	cached := onChain(1, "CODE-1", expiringAt(fixtures.FixedTime.Add(-time.Second)))
	cached.IsValid = true
	cached.IsExpired = false
	s.mockCache.EXPECT().Get(gomock.Any(), "CODE-1").Return(cached, nil)

	result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1"})

	s.Require().NoError(err)
	s.Equal(models.ReasonExpired, result.Reason)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
}

func (s *CacheSuite) TestMissFillsFoundResults() {
	ledger := onChain(1, "CODE-1", nil)
	gomock.InOrder(
		s.mockCache.EXPECT().Get(gomock.Any(), "CODE-1").Return(nil, sentinel.ErrNotFound),
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil),
		s.mockCache.EXPECT().Set(gomock.Any(), "CODE-1", ledger).Return(nil),
	)

	result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1"})

	s.Require().NoError(err)
	s.True(result.Verified)
}

func (s *CacheSuite) TestUnknownCodesAreNotCached() {
	s.mockCache.EXPECT().Get(gomock.Any(), "NOPE").Return(nil, sentinel.ErrNotFound)
	s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "NOPE").Return(registrymodels.NotFoundResult(), nil)

	result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "NOPE"})

	s.Require().NoError(err)
	s.Equal(models.ReasonNotFound, result.Reason)
}

func (s *CacheSuite) TestCacheFailuresFallBackToTheLedger() {
	ledger := onChain(1, "CODE-1", nil)
	s.mockCache.EXPECT().Get(gomock.Any(), "CODE-1").Return(nil, errors.New("connection refused"))
	s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), "CODE-1").Return(ledger, nil)
	s.mockCache.EXPECT().Set(gomock.Any(), "CODE-1", ledger).Return(errors.New("connection refused"))

	result, err := s.service.Verify(s.ctx(), models.Request{VerificationCode: "CODE-1"})

	s.Require().NoError(err)
	s.True(result.Verified)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheErrors.WithLabelValues("get")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheErrors.WithLabelValues("set")))
}

func (s *CacheSuite) TestInvalidateMarksTheCodeRevoked() {
	s.mockCache.EXPECT().MarkRevoked(gomock.Any(), "CODE-1").Return(nil)

	s.NoError(s.service.Invalidate(s.ctx(), "CODE-1"))
	s.NoError(New(s.mockRegistry).Invalidate(s.ctx(), "CODE-1"), "no cache, nothing to invalidate")
}

func (s *VerifySuite) TestVerifyBatch() {
	s.Run("results keep input order", func() {
		codes := make([]string, 0, 20)
		for i := range 20 {
			codes = append(codes, fmt.Sprintf("CODE-%d", i))
		}
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, code string) (*registrymodels.VerificationResult, error) {
				var n int
				_, _ = fmt.Sscanf(code, "CODE-%d", &n)
				if n%2 == 1 {
					return registrymodels.NotFoundResult(), nil
				}
				return onChain(id.CredentialID(n+1), code, nil), nil
			}).Times(20)

		batch, err := s.service.VerifyBatch(s.ctx(), codes)

		s.Require().NoError(err)
		s.Require().Len(batch.Results, 20)
		for i, result := range batch.Results {
			if i%2 == 1 {
				s.Equal(models.ReasonNotFound, result.Reason, "code %d", i)
				continue
			}
			s.EqualValues(i+1, result.OnChain.CredentialID, "code %d", i)
			s.True(result.Verified)
		}
		s.Equal(models.BatchSummary{Total: 20, Valid: 10, Invalid: 10}, batch.Summary)
	})

	s.Run("more than 100 codes are rejected", func() {
		codes := make([]string, models.MaxBatchSize+1)
		for i := range codes {
			codes[i] = fmt.Sprintf("C%d", i)
		}

		_, err := s.service.VerifyBatch(s.ctx(), codes)

		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("empty batch is rejected", func() {
		_, err := s.service.VerifyBatch(s.ctx(), nil)

		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("ledger failure fails the batch", func() {
		s.mockRegistry.EXPECT().VerifyCredential(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "backend unavailable")).
			MinTimes(1)

		_, err := s.service.VerifyBatch(s.ctx(), []string{"A", "B", "C"})

		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
