package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	registrymodels "credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	"credregistry/pkg/testutil"
)

func sampleResult(t *testing.T) *registrymodels.VerificationResult {
	t.Helper()
	credential := testutil.NewCredential(testutil.TestAddresses.Issuer1, testutil.TestAddresses.Holder1, "ABC")
	credential.ID = 1
	expires := testutil.FixedTime.Add(time.Hour)
	credential.ExpiresAt = &expires
	return registrymodels.ResultFor(credential, testutil.FixedTime)
}

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := testutil.FixedTime
	c := NewInMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "ABC")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	result := sampleResult(t)
	require.NoError(t, c.Set(ctx, "ABC", result))

	t.Run("hit returns a copy", func(t *testing.T) {
		got, err := c.Get(ctx, "ABC")
		require.NoError(t, err)
		assert.Equal(t, result.CredentialID, got.CredentialID)
		assert.Equal(t, "Test University", got.Organization)

		got.Organization = "mutated"
		*got.ExpiresAt = time.Time{}
		again, err := c.Get(ctx, "ABC")
		require.NoError(t, err)
		assert.Equal(t, "Test University", again.Organization)
		assert.Equal(t, *result.ExpiresAt, *again.ExpiresAt)
	})

	t.Run("mark revoked drops the entry", func(t *testing.T) {
		require.NoError(t, c.MarkRevoked(ctx, "ABC"))
		_, err := c.Get(ctx, "ABC")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.NoError(t, c.MarkRevoked(ctx, "ABC"), "marking a missing entry is not an error")
	})

	t.Run("entries expire with the ttl", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "XYZ", result))
		now = now.Add(time.Minute)

		_, err := c.Get(ctx, "XYZ")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Equal(t, 0, c.Sweep())
	})

	t.Run("nil result is ignored", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "NIL", nil))
		_, err := c.Get(ctx, "NIL")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryCache_RevokedCodesRefuseStaleResults(t *testing.T) {
	ctx := context.Background()
	now := testutil.FixedTime
	c := NewInMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.MarkRevoked(ctx, "ABC"))

	stale := sampleResult(t)
	require.NoError(t, c.Set(ctx, "ABC", stale))
	_, err := c.Get(ctx, "ABC")
	require.ErrorIs(t, err, sentinel.ErrNotFound, "a valid result read before the revoke is not stored")

	revoked := sampleResult(t)
	revoked.IsRevoked = true
	revoked.IsValid = false
	require.NoError(t, c.Set(ctx, "ABC", revoked))
	got, err := c.Get(ctx, "ABC")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)

	t.Run("other codes are unaffected", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "XYZ", stale))
		_, err := c.Get(ctx, "XYZ")
		assert.NoError(t, err)
	})

	t.Run("marker expires with the ttl", func(t *testing.T) {
		now = now.Add(time.Minute)
		c.Sweep()
		require.NoError(t, c.Set(ctx, "ABC", stale))
		_, err := c.Get(ctx, "ABC")
		assert.NoError(t, err)
	})
}

func TestInMemoryCache_RunSweeperStopsWithContext(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunSweeper(ctx, time.Millisecond) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
