package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"credregistry/internal/registry/models"
	"credregistry/internal/registry/store"
	dErrors "credregistry/pkg/domain-errors"
	fixtures "credregistry/pkg/testutil"
)

func (s *ServiceSuite) TestHolderRevokesAndStrangerCannot() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	credID := s.issue("CODE-3")

	s.mockInvalidator.EXPECT().Invalidate(gomock.Any(), "CODE-3").Return(nil).Times(1)

	s.Require().NoError(s.service.RevokeCredential(s.ctx(), s.holder, credID))

	err := s.service.RevokeCredential(s.ctx(), fixtures.TestAddresses.Stranger, credID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(msgNotAuthorizedToRevoke, err.Error())

	result, err := s.service.VerifyCredential(s.ctx(), "CODE-3")
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.True(result.IsRevoked)
}

func (s *ServiceSuite) TestRevokeCredential() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")

	s.Run("issuer may revoke and a repeat is a silent success", func() {
		credID := s.issue("REVOKE-TWICE")
		s.mockInvalidator.EXPECT().Invalidate(gomock.Any(), "REVOKE-TWICE").Return(nil).Times(1)

		s.Require().NoError(s.service.RevokeCredential(s.ctx(), s.issuer, credID))
		s.Require().NoError(s.service.RevokeCredential(s.ctx(), s.holder, credID))

		s.Equal([]models.EventType{models.EventCredentialIssued, models.EventCredentialRevoked}, s.events(credID))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.CredentialsRevoked))
	})

	s.Run("unknown id is not found", func() {
		err := s.service.RevokeCredential(s.ctx(), s.issuer, 999)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("revoked issuer can still revoke what it issued", func() {
		credID := s.issue("REVOKE-AFTER")
		s.Require().NoError(s.service.RevokeIssuer(s.ctx(), s.owner, s.issuer))
		s.mockInvalidator.EXPECT().Invalidate(gomock.Any(), "REVOKE-AFTER").Return(nil)

		s.NoError(s.service.RevokeCredential(s.ctx(), s.issuer, credID))
	})

	s.Run("registry owner is not implicitly allowed", func() {
		s.authorize(s.issuer, "Acme")
		credID := s.issue("NOT-OWNERS")

		err := s.service.RevokeCredential(s.ctx(), s.owner, credID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestRevokeCredentialInvalidationFailureIsNotFatal() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	credID := s.issue("CACHE-DOWN")

	s.mockInvalidator.EXPECT().Invalidate(gomock.Any(), "CACHE-DOWN").Return(errors.New("redis: connection refused"))

	s.Require().NoError(s.service.RevokeCredential(s.ctx(), s.holder, credID))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.InvalidationFailures))

	result, err := s.service.VerifyCredential(s.ctx(), "CACHE-DOWN")
	s.Require().NoError(err)
	s.True(result.IsRevoked)
}

// cancelAfterCommit cancels the caller's context as soon as the transaction
// returns, like a client that disconnects right after the write.
type cancelAfterCommit struct {
	StoreTx
	cancel context.CancelFunc
}

func (t cancelAfterCommit) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	err := t.StoreTx.RunInTx(ctx, fn)
	t.cancel()
	return err
}

func (s *ServiceSuite) TestRevokeCredentialInvalidatesAfterTheRequestIsCancelled() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	credID := s.issue("GONE-CLIENT")

	ctx, cancel := context.WithCancel(s.ctx())
	defer cancel()
	svc := New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithInvalidator(s.mockInvalidator),
		WithTx(cancelAfterCommit{StoreTx: newInMemoryStoreTx(s.store), cancel: cancel}),
	)
	s.mockInvalidator.EXPECT().Invalidate(gomock.Any(), "GONE-CLIENT").DoAndReturn(func(ctx context.Context, _ string) error {
		_, hasDeadline := ctx.Deadline()
		s.True(hasDeadline, "invalidation runs under its own timeout")
		return ctx.Err()
	})

	s.Require().NoError(svc.RevokeCredential(ctx, s.holder, credID))
	s.Require().Error(ctx.Err())
	s.Equal(float64(0), testutil.ToFloat64(s.metrics.InvalidationFailures))
}
