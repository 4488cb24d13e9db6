package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registrymodels "credregistry/internal/registry/models"
	registry "credregistry/internal/registry/service"
	"credregistry/internal/registry/store"
	"credregistry/internal/verification/cache"
	"credregistry/internal/verification/models"
	"credregistry/pkg/requestcontext"
	fixtures "credregistry/pkg/testutil"
)

// Revocation through the registry must be visible to the next verification
// even when the valid result was cached.
func TestRevocationInvalidatesCachedResult(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), fixtures.FixedTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	owner := fixtures.TestAddresses.Owner
	issuer := fixtures.TestAddresses.Issuer1

	var verifier *Service
	reg := registry.New(store.NewInMemoryStore(),
		registry.WithLogger(logger),
		registry.WithInvalidator(registry.InvalidatorFunc(func(ctx context.Context, code string) error {
			return verifier.Invalidate(ctx, code)
		})),
	)
	resultCache := cache.NewInMemoryCache(time.Hour)
	verifier = New(reg, WithCache(resultCache), WithLogger(logger))

	require.NoError(t, reg.Bootstrap(ctx, owner))
	require.NoError(t, reg.AuthorizeIssuer(ctx, owner, issuer, "Test University"))
	credentialID, err := reg.IssueCredential(ctx, issuer, fixtures.NewIssueCommand(fixtures.TestAddresses.Holder1, "ABC-123"))
	require.NoError(t, err)

	first, err := verifier.Verify(ctx, models.Request{VerificationCode: "ABC-123"})
	require.NoError(t, err)
	require.True(t, first.Verified)
	_, err = resultCache.Get(ctx, "ABC-123")
	require.NoError(t, err, "valid result is cached")

	require.NoError(t, reg.RevokeCredential(ctx, issuer, credentialID))

	second, err := verifier.Verify(ctx, models.Request{VerificationCode: "0xABC-123"})
	require.NoError(t, err)
	assert.False(t, second.Verified)
	assert.Equal(t, models.ReasonRevoked, second.Reason)
	assert.Equal(t, credentialID, second.OnChain.CredentialID)
}

// pausingRegistry holds its first lookup after the ledger read until resume is
// closed, standing in for an instance whose fill is still in flight.
type pausingRegistry struct {
	Registry
	read   chan struct{}
	resume chan struct{}
	once   sync.Once
}

func (r *pausingRegistry) VerifyCredential(ctx context.Context, code string) (*registrymodels.VerificationResult, error) {
	result, err := r.Registry.VerifyCredential(ctx, code)
	r.once.Do(func() {
		close(r.read)
		<-r.resume
	})
	return result, err
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// Two instances share one cache. B reads the ledger, A revokes, then B stores
// what it read. Neither instance may report the credential verified afterwards.
func TestRevocationSurvivesAnInFlightFillFromAnotherInstance(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), fixtures.FixedTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	owner := fixtures.TestAddresses.Owner
	issuer := fixtures.TestAddresses.Issuer1
	shared := cache.NewInMemoryCache(time.Hour)

	var instanceA *Service
	reg := registry.New(store.NewInMemoryStore(),
		registry.WithLogger(logger),
		registry.WithInvalidator(registry.InvalidatorFunc(func(ctx context.Context, code string) error {
			return instanceA.Invalidate(ctx, code)
		})),
	)
	instanceA = New(reg, WithCache(shared), WithLogger(logger))
	slow := &pausingRegistry{Registry: reg, read: make(chan struct{}), resume: make(chan struct{})}
	instanceB := New(slow, WithCache(shared), WithLogger(logger))

	require.NoError(t, reg.Bootstrap(ctx, owner))
	require.NoError(t, reg.AuthorizeIssuer(ctx, owner, issuer, "Test University"))
	credentialID, err := reg.IssueCredential(ctx, issuer, fixtures.NewIssueCommand(fixtures.TestAddresses.Holder1, "ABC-123"))
	require.NoError(t, err)

	inFlight := make(chan *models.Result, 1)
	go func() {
		result, err := instanceB.Verify(ctx, models.Request{VerificationCode: "ABC-123"})
		assert.NoError(t, err)
		inFlight <- result
	}()

	waitFor(t, slow.read, "ledger read")
	require.NoError(t, reg.RevokeCredential(ctx, issuer, credentialID))
	close(slow.resume)
	if result := waitFor(t, inFlight, "in-flight verification"); result != nil {
		assert.True(t, result.Verified, "the lookup read the ledger before the revoke")
	}

	for name, instance := range map[string]*Service{"A": instanceA, "B": instanceB} {
		result, err := instance.Verify(ctx, models.Request{VerificationCode: "ABC-123"})
		require.NoError(t, err, name)
		assert.False(t, result.Verified, name)
		assert.Equal(t, models.ReasonRevoked, result.Reason, name)
	}
}
