package store

import (
	"context"
	"time"

	"credregistry/internal/registry/models"
	id "credregistry/pkg/domain"
)

// Store is the registry's persistence port. Implementations return
// internal/sentinel errors (ErrNotFound, ErrConflict) so the service can translate
// them once. Reads return copies; callers never share records with the store.
type Store interface {
	// Owner returns the registry owner or sentinel.ErrNotFound before bootstrap.
	Owner(ctx context.Context) (id.Address, error)
	// SetOwner records the owner once; a second call returns sentinel.ErrConflict.
	SetOwner(ctx context.Context, owner id.Address, at time.Time) error

	FindIssuer(ctx context.Context, addr id.Address) (*models.Issuer, error)
	SaveIssuer(ctx context.Context, issuer *models.Issuer) error

	// InsertCredential assigns the next id, stores the record and indexes its
	// verification code. A code that is already indexed returns sentinel.ErrConflict
	// and leaves the store unchanged.
	InsertCredential(ctx context.Context, credential *models.Credential) (id.CredentialID, error)
	FindCredential(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	FindCredentialIDByCode(ctx context.Context, code string) (id.CredentialID, error)
	// MarkRevoked sets the one-way revoked flag. It never clears it.
	MarkRevoked(ctx context.Context, credentialID id.CredentialID, at time.Time) error
	ListByOwner(ctx context.Context, owner id.Address) ([]*models.Credential, error)
	ListByIssuer(ctx context.Context, issuer id.Address) ([]*models.Credential, error)

	AppendEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, credentialID id.CredentialID) ([]*models.Event, error)
}
