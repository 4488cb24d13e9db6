package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const serializationFailure = "40001"

// IsSerializationFailure reports whether err is a SERIALIZABLE conflict that
// Postgres expects the client to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

// RunSerializable runs fn in a SERIALIZABLE transaction, retrying serialization
// failures up to attempts times in total. fn must be safe to re-run.
func RunSerializable(ctx context.Context, db *sql.DB, attempts int, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for range attempts {
		err = runOnce(ctx, db, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is no-op; error already captured
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
