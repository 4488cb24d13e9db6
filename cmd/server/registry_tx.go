package main

import (
	"context"
	"database/sql"
	"time"

	"credregistry/internal/platform/database"
	"credregistry/internal/registry/store"
	dErrors "credregistry/pkg/domain-errors"
)

const (
	defaultRegistryTxTimeout = 5 * time.Second
	registryTxAttempts       = 3
)

// registryPostgresTx runs registry mutations in SERIALIZABLE transactions so the
// credential counter, the code index and the outbox move together.
type registryPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newRegistryPostgresTx(db *sql.DB) *registryPostgresTx {
	return &registryPostgresTx{db: db, timeout: defaultRegistryTxTimeout}
}

func (t *registryPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	return database.RunSerializable(ctx, t.db, registryTxAttempts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.NewPostgresTx(tx))
	})
}
