package ledger

import (
	"context"

	"credregistry/internal/registry/store"
	dErrors "credregistry/pkg/domain-errors"
)

// Tx runs registry mutations against the invocation's store. The peer commits or
// discards the whole write set after validation, so no lock is taken here.
type Tx struct {
	store *Store
}

func NewTx(st *Store) *Tx {
	return &Tx{store: st}
}

func (t *Tx) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}
