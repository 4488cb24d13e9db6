package service

import (
	"context"
	"errors"
	"time"

	"credregistry/internal/registry/models"
	"credregistry/internal/registry/store"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
)

// RevokeCredential permanently revokes credentialID. Only its issuer or owner may
// revoke. Revoking an already revoked credential succeeds without a second event.
func (s *Service) RevokeCredential(ctx context.Context, caller id.Address, credentialID id.CredentialID) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var (
		code           string
		alreadyRevoked bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		alreadyRevoked = false
		credential, err := st.FindCredential(ctx, credentialID)
		if err != nil {
			return err
		}
		if !credential.CanBeRevokedBy(caller) {
			return dErrors.New(dErrors.CodeForbidden, msgNotAuthorizedToRevoke)
		}
		code = credential.VerificationCode
		if credential.Revoked {
			alreadyRevoked = true
			return nil
		}
		if err := st.MarkRevoked(ctx, credentialID, now); err != nil {
			return err
		}
		return st.AppendEvent(ctx, models.CredentialRevoked(caller, credential, now))
	})
	if err != nil {
		s.rejectFromErr("revoke_credential", err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, msgCredentialNotFound)
		}
		return translateErr(err, "revoke credential")
	}
	if alreadyRevoked {
		s.logger.DebugContext(ctx, "credential already revoked", "credential_id", credentialID)
		return nil
	}

	if s.metrics != nil {
		s.metrics.CredentialsRevoked.Inc()
	}
	s.invalidate(ctx, code)
	s.logger.InfoContext(ctx, "credential revoked",
		"credential_id", credentialID,
		"actor", caller,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// invalidationTimeout bounds the cache notification after a committed revoke.
const invalidationTimeout = 3 * time.Second

// invalidate tells the verification cache that code is revoked. The revoke has
// already committed, so the call is detached from the request's cancellation.
// A failure leaves the stale entry to expire with its TTL.
func (s *Service) invalidate(ctx context.Context, code string) {
	if s.invalidator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidationTimeout)
	defer cancel()
	if err := s.invalidator.Invalidate(ctx, code); err != nil {
		if s.metrics != nil {
			s.metrics.InvalidationFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "failed to invalidate cached verification result",
			"verification_code", code,
			"error", err,
		)
	}
}
