package service

import (
	"context"
	"time"

	"credregistry/internal/registry/metrics"
	"credregistry/internal/registry/store"
	dErrors "credregistry/pkg/domain-errors"
)

// StoreTx provides the transactional boundary for registry mutations. fn receives
// the store it must use for every read and write inside the transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error
}

const defaultTxTimeout = 5 * time.Second

// inMemoryStoreTx serializes mutations with a single writer lock. The lock is a
// one-slot channel so that waiting respects the context deadline.
type inMemoryStoreTx struct {
	lock    chan struct{}
	store   store.Store
	timeout time.Duration
	metrics *metrics.Metrics
}

func newInMemoryStoreTx(st store.Store) *inMemoryStoreTx {
	return &inMemoryStoreTx{
		lock:  make(chan struct{}, 1),
		store: st,
	}
}

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	waitStart := time.Now()
	select {
	case t.lock <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: timed out waiting for writer lock")
	}
	defer func() { <-t.lock }()
	if t.metrics != nil {
		t.metrics.ObserveTxLockWait(time.Since(waitStart).Seconds())
	}

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}
