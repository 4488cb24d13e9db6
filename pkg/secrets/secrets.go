// Package secrets generates and checks HMAC signing keys for caller tokens.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	dErrors "credregistry/pkg/domain-errors"
)

// MinSigningKeyLength is the shortest signing key accepted in production. HS256
// keys shorter than the hash output weaken the MAC.
const MinSigningKeyLength = 32

// Generate creates a random signing key, base64url encoded.
func Generate() (string, error) {
	buf := make([]byte, MinSigningKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CheckSigningKey rejects keys that are too short to sign tokens safely.
func CheckSigningKey(key string) error {
	if len(key) < MinSigningKeyLength {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("signing key must be at least %d bytes", MinSigningKeyLength))
	}
	return nil
}
