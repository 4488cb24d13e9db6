package service

import (
	"context"
	"log/slog"

	"credregistry/internal/registry/metrics"
	"credregistry/internal/registry/store"
)

// Invalidator drops cached verification results for a code. The verification
// result cache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, code string) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, code string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, code string) error {
	return f(ctx, code)
}

type Option func(*Service)

const defaultOwnerOrganization = "Registry Owner"

// Service implements the issuer registry, credential store and revocation
// controller over a single Store. Every mutation runs inside tx.
type Service struct {
	store             store.Store
	tx                StoreTx
	invalidator       Invalidator
	metrics           *metrics.Metrics
	logger            *slog.Logger
	ownerOrganization string
}

// New creates a registry service. Without WithTx, mutations are serialized by an
// in-memory writer lock around st.
func New(st store.Store, opts ...Option) *Service {
	svc := &Service{
		store:             st,
		logger:            slog.Default(),
		ownerOrganization: defaultOwnerOrganization,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tx == nil {
		memTx := newInMemoryStoreTx(st)
		memTx.metrics = svc.metrics
		svc.tx = memTx
	}
	return svc
}

// WithTx replaces the default in-memory transaction, e.g. with a database
// transaction that hands fn a store bound to it.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithInvalidator registers the cache to notify when a credential is revoked.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
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

// WithOwnerOrganization sets the organization recorded for the owner at bootstrap.
func WithOwnerOrganization(org string) Option {
	return func(s *Service) {
		if org != "" {
			s.ownerOrganization = org
		}
	}
}

func (s *Service) reject(operation, reason string) {
	if s.metrics != nil {
		s.metrics.IncRejection(operation, reason)
	}
}
