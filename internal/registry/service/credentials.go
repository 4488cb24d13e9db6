package service

import (
	"context"
	"errors"

	"credregistry/internal/registry/models"
	"credregistry/internal/registry/store"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
)

// IssueCredential records a new credential issued by caller and returns its id.
// Authorization, code uniqueness and the insert are decided in one transaction,
// so concurrent issues of the same code yield exactly one success.
func (s *Service) IssueCredential(ctx context.Context, caller id.Address, cmd models.IssueCommand) (id.CredentialID, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	now := requestcontext.Now(ctx)

	var credentialID id.CredentialID
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		issuer, err := st.FindIssuer(ctx, caller)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if issuer == nil || !issuer.Authorized {
			return dErrors.New(dErrors.CodeForbidden, msgNotAuthorizedIssuer)
		}

		if err := cmd.Validate(now); err != nil {
			return err
		}
		code, err := models.NormalizeVerificationCode(cmd.VerificationCode)
		if err != nil {
			return err
		}

		credential := &models.Credential{
			CredentialHash:     cmd.CredentialHash,
			MetadataHash:       cmd.MetadataHash,
			Owner:              cmd.Owner,
			Issuer:             caller,
			IssuerOrganization: issuer.Organization,
			IssuedAt:           now,
			ExpiresAt:          cmd.ExpiresAt,
			VerificationCode:   code,
		}
		newID, err := st.InsertCredential(ctx, credential)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, msgDuplicateCode)
			}
			return err
		}
		credential.ID = newID
		if err := st.AppendEvent(ctx, models.CredentialIssued(credential)); err != nil {
			return err
		}
		credentialID = newID
		return nil
	})
	if err != nil {
		s.rejectFromErr("issue_credential", err)
		return 0, translateErr(err, "issue credential")
	}

	if s.metrics != nil {
		s.metrics.CredentialsIssued.Inc()
	}
	s.logger.InfoContext(ctx, "credential issued",
		"credential_id", credentialID,
		"issuer", caller,
		"owner", cmd.Owner,
		"request_id", requestcontext.RequestID(ctx),
	)
	return credentialID, nil
}

// GetCredential returns the full record for credentialID.
func (s *Service) GetCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	if credentialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeNotFound, msgCredentialNotFound)
	}
	credential, err := s.store.FindCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, msgCredentialNotFound)
		}
		return nil, translateErr(err, "read credential")
	}
	return credential, nil
}

// VerifyCredential evaluates the credential indexed by code at the request time.
// Unknown codes are not an error: they yield a result with CredentialID 0.
func (s *Service) VerifyCredential(ctx context.Context, code string) (*models.VerificationResult, error) {
	normalized, err := models.NormalizeVerificationCode(code)
	if err != nil {
		return nil, err
	}

	credentialID, err := s.store.FindCredentialIDByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.lookup("not_found")
			return models.NotFoundResult(), nil
		}
		return nil, translateErr(err, "look up verification code")
	}
	credential, err := s.store.FindCredential(ctx, credentialID)
	if err != nil {
		return nil, translateErr(err, "read credential")
	}

	result := models.ResultFor(credential, requestcontext.Now(ctx))
	switch {
	case result.IsValid:
		s.lookup("valid")
	case result.IsRevoked:
		s.lookup("revoked")
	default:
		s.lookup("expired")
	}
	return result, nil
}

// ListByOwner returns the credentials held by owner, ordered by id.
func (s *Service) ListByOwner(ctx context.Context, owner id.Address) ([]*models.Credential, error) {
	credentials, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, translateErr(err, "list credentials by owner")
	}
	return credentials, nil
}

// ListByIssuer returns the credentials issued by issuer, ordered by id.
func (s *Service) ListByIssuer(ctx context.Context, issuer id.Address) ([]*models.Credential, error) {
	credentials, err := s.store.ListByIssuer(ctx, issuer)
	if err != nil {
		return nil, translateErr(err, "list credentials by issuer")
	}
	return credentials, nil
}

// Events returns the history of credentialID, oldest first.
func (s *Service) Events(ctx context.Context, credentialID id.CredentialID) ([]*models.Event, error) {
	if _, err := s.GetCredential(ctx, credentialID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, credentialID)
	if err != nil {
		return nil, translateErr(err, "list credential events")
	}
	return events, nil
}

func (s *Service) lookup(outcome string) {
	if s.metrics != nil {
		s.metrics.IncLookup(outcome)
	}
}
