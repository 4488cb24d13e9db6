package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "credregistry/pkg/domain"
)

func TestAccessorsOnEmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, id.Address(""), Caller(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, RequestID(ctx))

	before := time.Now()
	now := Now(ctx)
	assert.False(t, now.Before(before), "Now falls back to the wall clock")
}

func TestRoundTrip(t *testing.T) {
	caller := id.AddressFromIdentity("registrar")
	at := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	ctx := WithCaller(context.Background(), caller)
	ctx = WithClientIP(ctx, "203.0.113.9")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, at)

	assert.Equal(t, caller, Caller(ctx))
	assert.Equal(t, "203.0.113.9", ClientIP(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, at, Now(ctx))
}

func TestWithTime_Overrides(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	ctx := WithTime(WithTime(context.Background(), first), second)

	assert.Equal(t, second, Now(ctx))
}
