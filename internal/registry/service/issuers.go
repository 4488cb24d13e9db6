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

// Owner returns the registry owner.
func (s *Service) Owner(ctx context.Context) (id.Address, error) {
	owner, err := s.store.Owner(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "registry owner not set")
		}
		return "", translateErr(err, "read owner")
	}
	return owner, nil
}

// Bootstrap makes owner the registry owner and an authorized issuer. Repeating it
// with the same owner is a no-op; a different owner is a conflict.
func (s *Service) Bootstrap(ctx context.Context, owner id.Address) error {
	if owner.IsNil() || owner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner must be a non-zero address")
	}
	now := requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		current, err := st.Owner(ctx)
		switch {
		case err == nil && current == owner:
			return nil
		case err == nil:
			return dErrors.New(dErrors.CodeConflict, "registry already has a different owner")
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		if err := st.SetOwner(ctx, owner, now); err != nil {
			return err
		}
		issuer := &models.Issuer{
			Address:      owner,
			Organization: s.ownerOrganization,
			Authorized:   true,
			UpdatedAt:    now,
		}
		if err := st.SaveIssuer(ctx, issuer); err != nil {
			return err
		}
		return st.AppendEvent(ctx, models.IssuerAuthorized(owner, issuer, now))
	})
	if err != nil {
		return translateErr(err, "bootstrap registry")
	}
	s.logger.InfoContext(ctx, "registry bootstrapped", "owner", owner)
	return nil
}

// AuthorizeIssuer lets address issue credentials under organization. Owner only.
func (s *Service) AuthorizeIssuer(ctx context.Context, caller, address id.Address, organization string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	org, err := models.NormalizeOrganization(organization)
	if err != nil {
		return err
	}
	if address.IsNil() || address.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer must be a non-zero address")
	}
	now := requestcontext.Now(ctx)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := s.requireOwner(ctx, st, caller); err != nil {
			return err
		}
		issuer := &models.Issuer{Address: address, Organization: org, Authorized: true, UpdatedAt: now}
		if err := st.SaveIssuer(ctx, issuer); err != nil {
			return err
		}
		return st.AppendEvent(ctx, models.IssuerAuthorized(caller, issuer, now))
	})
	if err != nil {
		s.rejectFromErr("authorize_issuer", err)
		return translateErr(err, "authorize issuer")
	}

	if s.metrics != nil {
		s.metrics.IssuersAuthorized.Inc()
	}
	s.logger.InfoContext(ctx, "issuer authorized",
		"issuer", address,
		"organization", org,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// RevokeIssuer stops address from issuing. Credentials it already issued keep
// their issuer, organization and validity. Owner only.
func (s *Service) RevokeIssuer(ctx context.Context, caller, address id.Address) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if address.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer address is required")
	}
	now := requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := s.requireOwner(ctx, st, caller); err != nil {
			return err
		}
		issuer, err := st.FindIssuer(ctx, address)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			issuer = &models.Issuer{Address: address}
		case err != nil:
			return err
		}
		issuer.Authorized = false
		issuer.UpdatedAt = now
		if err := st.SaveIssuer(ctx, issuer); err != nil {
			return err
		}
		return st.AppendEvent(ctx, models.IssuerRevoked(caller, address, now))
	})
	if err != nil {
		s.rejectFromErr("revoke_issuer", err)
		return translateErr(err, "revoke issuer")
	}

	if s.metrics != nil {
		s.metrics.IssuersRevoked.Inc()
	}
	s.logger.InfoContext(ctx, "issuer revoked",
		"issuer", address,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// IsAuthorizedIssuer reports whether address may currently issue credentials.
func (s *Service) IsAuthorizedIssuer(ctx context.Context, address id.Address) (bool, error) {
	issuer, err := s.store.FindIssuer(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, translateErr(err, "read issuer")
	}
	return issuer.Authorized, nil
}

// GetIssuerOrganization returns the organization recorded for address, or "" if
// it was never authorized.
func (s *Service) GetIssuerOrganization(ctx context.Context, address id.Address) (string, error) {
	issuer, err := s.GetIssuer(ctx, address)
	if err != nil {
		return "", err
	}
	return issuer.Organization, nil
}

// GetIssuer returns the issuer entry for address. Unknown addresses yield an
// unauthorized entry with an empty organization rather than an error.
func (s *Service) GetIssuer(ctx context.Context, address id.Address) (*models.Issuer, error) {
	issuer, err := s.store.FindIssuer(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Issuer{Address: address}, nil
		}
		return nil, translateErr(err, "read issuer")
	}
	return issuer, nil
}

func (s *Service) requireOwner(ctx context.Context, st store.Store, caller id.Address) error {
	owner, err := st.Owner(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, msgNotOwner)
		}
		return err
	}
	if owner != caller {
		return dErrors.New(dErrors.CodeForbidden, msgNotOwner)
	}
	return nil
}

// rejectFromErr counts rejections that carry a caller-facing domain code.
func (s *Service) rejectFromErr(operation string, err error) {
	if code, ok := dErrors.CodeOf(err); ok {
		s.reject(operation, string(code))
	}
}
