package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credregistry/internal/registry/models"
	"credregistry/internal/sentinel"
	"credregistry/pkg/platform/outbox/store/memory"
	"credregistry/pkg/testutil"
)

var (
	issuerAddr = testutil.TestAddresses.Issuer1
	holderAddr = testutil.TestAddresses.Holder1
)

func TestInMemoryStore_Owner(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Owner(ctx)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.SetOwner(ctx, testutil.TestAddresses.Owner, testutil.FixedTime))
	owner, err := store.Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestAddresses.Owner, owner)

	err = store.SetOwner(ctx, testutil.TestAddresses.Stranger, testutil.FixedTime)
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_Issuers(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.FindIssuer(ctx, issuerAddr)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	issuer := testutil.NewIssuer(issuerAddr, "Test University")
	require.NoError(t, store.SaveIssuer(ctx, issuer))

	issuer.Authorized = false
	found, err := store.FindIssuer(ctx, issuerAddr)
	require.NoError(t, err)
	assert.True(t, found.Authorized, "store keeps its own copy")

	require.NoError(t, store.SaveIssuer(ctx, issuer))
	found, err = store.FindIssuer(ctx, issuerAddr)
	require.NoError(t, err)
	assert.False(t, found.Authorized)
	assert.Equal(t, "Test University", found.Organization)
}

func TestInMemoryStore_InsertAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "A"))
	require.NoError(t, err)
	second, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "B"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)

	byCode, err := store.FindCredentialIDByCode(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, second, byCode)
}

func TestInMemoryStore_DuplicateCodeLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "A"))
	require.NoError(t, err)

	_, err = store.InsertCredential(ctx, testutil.NewCredential(testutil.TestAddresses.Issuer2, holderAddr, "A"))
	require.ErrorIs(t, err, sentinel.ErrConflict)

	next, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "B"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, next, "a rejected insert does not consume an id")

	credential, err := store.FindCredential(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, issuerAddr, credential.Issuer)
}

func TestInMemoryStore_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	credID, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "A"))
	require.NoError(t, err)

	found, err := store.FindCredential(ctx, credID)
	require.NoError(t, err)
	found.Revoked = true
	found.Owner = testutil.TestAddresses.Stranger

	again, err := store.FindCredential(ctx, credID)
	require.NoError(t, err)
	assert.False(t, again.Revoked)
	assert.Equal(t, holderAddr, again.Owner)
}

func TestInMemoryStore_FindUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.FindCredential(ctx, 0)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.FindCredential(ctx, 7)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = store.FindCredentialIDByCode(ctx, "missing")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	require.ErrorIs(t, store.MarkRevoked(ctx, 7, testutil.FixedTime), sentinel.ErrNotFound)
}

func TestInMemoryStore_MarkRevokedIsOneWay(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	credID, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "A"))
	require.NoError(t, err)

	first := testutil.FixedTime.Add(time.Hour)
	require.NoError(t, store.MarkRevoked(ctx, credID, first))
	require.NoError(t, store.MarkRevoked(ctx, credID, first.Add(time.Hour)))

	credential, err := store.FindCredential(ctx, credID)
	require.NoError(t, err)
	assert.True(t, credential.Revoked)
	require.NotNil(t, credential.RevokedAt)
	assert.Equal(t, first, *credential.RevokedAt, "second revoke keeps the original timestamp")
}

func TestInMemoryStore_ListByOwnerAndIssuer(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	other := testutil.TestAddresses.Holder2

	for _, c := range []*models.Credential{
		testutil.NewCredential(issuerAddr, holderAddr, "A"),
		testutil.NewCredential(testutil.TestAddresses.Issuer2, holderAddr, "B"),
		testutil.NewCredential(issuerAddr, other, "C"),
	} {
		_, err := store.InsertCredential(ctx, c)
		require.NoError(t, err)
	}

	owned, err := store.ListByOwner(ctx, holderAddr)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "A", owned[0].VerificationCode)
	assert.Equal(t, "B", owned[1].VerificationCode)

	issued, err := store.ListByIssuer(ctx, issuerAddr)
	require.NoError(t, err)
	require.Len(t, issued, 2)
	assert.Equal(t, "A", issued[0].VerificationCode)
	assert.Equal(t, "C", issued[1].VerificationCode)

	none, err := store.ListByOwner(ctx, testutil.TestAddresses.Stranger)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStore_EventsForwardToOutbox(t *testing.T) {
	ctx := context.Background()
	outbox := memory.New()
	store := NewInMemoryStore(WithOutbox(outbox))

	credential := testutil.NewCredential(issuerAddr, holderAddr, "A")
	credential.ID = 1
	require.NoError(t, store.AppendEvent(ctx, models.CredentialIssued(credential)))
	require.NoError(t, store.AppendEvent(ctx, models.IssuerRevoked(testutil.TestAddresses.Owner, issuerAddr, testutil.FixedTime)))

	events, err := store.ListEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1, "issuer events are not credential history")
	assert.Equal(t, models.EventCredentialIssued, events[0].Type)

	pending, err := outbox.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "credential", pending[0].AggregateType)
	assert.Equal(t, "1", pending[0].AggregateID)
	assert.Equal(t, "issuer", pending[1].AggregateType)
	assert.Equal(t, issuerAddr.String(), pending[1].AggregateID)
}

func TestInMemoryStore_ConcurrentDuplicateCodes(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	result := testutil.RunConcurrent(50, func(idx int) error {
		_, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, "SAME"))
		return err
	})

	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(49), result.Conflicts)
	assert.Zero(t, result.Errors)
}

func TestInMemoryStore_ConcurrentInsertsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	result := testutil.RunConcurrent(100, func(idx int) error {
		credID, err := store.InsertCredential(ctx, testutil.NewCredential(issuerAddr, holderAddr, testutil.Code(idx)))
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		seen[uint64(credID)] = true
		return nil
	})

	require.Equal(t, int32(100), result.Successes)
	for i := uint64(1); i <= 100; i++ {
		assert.True(t, seen[i], "id %d assigned", i)
	}
}
