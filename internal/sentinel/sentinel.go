// Package sentinel holds the errors stores and caches return. Services map them
// to domain errors once, at the service boundary.
package sentinel

import "errors"

var (
	// ErrNotFound: no issuer, credential or cache entry under the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness constraint on the ledger was violated, such as a
	// reused verification code or a lost serialization race.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable: the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
