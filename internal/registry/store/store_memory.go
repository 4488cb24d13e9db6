package store

import (
	"context"
	"sync"
	"time"

	"credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	id "credregistry/pkg/domain"
	"credregistry/pkg/platform/outbox"
)

// InMemoryStore is an in-memory Store for tests and local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu          sync.RWMutex
	owner       id.Address
	issuers     map[id.Address]models.Issuer
	credentials []*models.Credential // credentials[i] has id i+1
	codes       map[string]id.CredentialID
	events      []*models.Event
	outbox      outbox.Store
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithOutbox forwards every appended event to an outbox for publication.
func WithOutbox(o outbox.Store) InMemoryOption {
	return func(s *InMemoryStore) {
		s.outbox = o
	}
}

// NewInMemoryStore constructs an empty registry.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		issuers: make(map[id.Address]models.Issuer),
		codes:   make(map[string]id.CredentialID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Owner(_ context.Context) (id.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owner.IsNil() {
		return "", sentinel.ErrNotFound
	}
	return s.owner, nil
}

func (s *InMemoryStore) SetOwner(_ context.Context, owner id.Address, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owner.IsNil() {
		return sentinel.ErrConflict
	}
	s.owner = owner
	return nil
}

func (s *InMemoryStore) FindIssuer(_ context.Context, addr id.Address) (*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuer, ok := s.issuers[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &issuer, nil
}

func (s *InMemoryStore) SaveIssuer(_ context.Context, issuer *models.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuers[issuer.Address] = *issuer
	return nil
}

func (s *InMemoryStore) InsertCredential(_ context.Context, credential *models.Credential) (id.CredentialID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[credential.VerificationCode]; taken {
		return 0, sentinel.ErrConflict
	}

	record := credential.Clone()
	record.ID = id.CredentialID(len(s.credentials) + 1)
	s.credentials = append(s.credentials, record)
	s.codes[record.VerificationCode] = record.ID
	return record.ID, nil
}

func (s *InMemoryStore) FindCredential(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.lookup(credentialID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) FindCredentialIDByCode(_ context.Context, code string) (id.CredentialID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credentialID, ok := s.codes[code]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return credentialID, nil
}

func (s *InMemoryStore) MarkRevoked(_ context.Context, credentialID id.CredentialID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.lookup(credentialID)
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.Revoked {
		return nil
	}
	revokedAt := at
	record.Revoked = true
	record.RevokedAt = &revokedAt
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.Address) ([]*models.Credential, error) {
	return s.filter(func(c *models.Credential) bool { return c.Owner == owner }), nil
}

func (s *InMemoryStore) ListByIssuer(_ context.Context, issuer id.Address) ([]*models.Credential, error) {
	return s.filter(func(c *models.Credential) bool { return c.Issuer == issuer }), nil
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, event *models.Event) error {
	if s.outbox != nil {
		entry, err := event.ToOutboxEntry()
		if err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, entry); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events = append(s.events, &e)
	return nil
}

func (s *InMemoryStore) ListEvents(_ context.Context, credentialID id.CredentialID) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.CredentialID == credentialID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) lookup(credentialID id.CredentialID) (*models.Credential, bool) {
	if credentialID.IsNil() || uint64(credentialID) > uint64(len(s.credentials)) {
		return nil, false
	}
	return s.credentials[credentialID-1], true
}

// filter returns copies ordered by id.
func (s *InMemoryStore) filter(match func(*models.Credential) bool) []*models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if match(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}
