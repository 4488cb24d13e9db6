// Package domain provides type-safe registry identifiers so addresses, hashes and
// credential ids cannot be mixed up at compile time.
package domain

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "credregistry/pkg/domain-errors"
)

// Address identifies an account on the registry: issuers, owners and the registry owner.
// The canonical form is lower-case "0x" followed by 40 hex characters.
type Address string

// ZeroAddress is never a valid credential owner.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// CredentialID is the sequential ledger id of a credential. Zero means "not found".
type CredentialID uint64

// Hash32 is a 32-byte content fingerprint (keccak256).
type Hash32 [32]byte

// Parse functions - use at trust boundaries (handlers, chaincode arguments).

func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok || len(raw) != 40 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	return Address(s), nil
}

func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid credential ID format")
	}
	return CredentialID(n), nil
}

func ParseHash32(s string) (Hash32, error) {
	var h Hash32
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 64 {
		return h, dErrors.New(dErrors.CodeInvalidInput, "hash must be 32 bytes of hex")
	}
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return h, dErrors.New(dErrors.CodeInvalidInput, "hash must be 32 bytes of hex")
	}
	return h, nil
}

// AddressFromIdentity derives a stable address from an opaque identity string
// (for example a Fabric client id). It takes the last 20 bytes of keccak256(identity).
func AddressFromIdentity(identity string) Address {
	sum := keccak256([]byte(identity))
	return Address("0x" + hex.EncodeToString(sum[12:]))
}

// HashContent returns the keccak256 fingerprint of b.
func HashContent(b []byte) Hash32 {
	return keccak256(b)
}

func keccak256(b []byte) Hash32 {
	var h Hash32
	d := sha3.NewLegacyKeccak256()
	_, _ = d.Write(b)
	copy(h[:], d.Sum(nil))
	return h
}

// String methods - for logging and debugging.

func (a Address) String() string       { return string(a) }
func (id CredentialID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (h Hash32) String() string        { return "0x" + hex.EncodeToString(h[:]) }

// IsNil checks - used for service-layer validation.

func (a Address) IsNil() bool       { return a == "" }
func (a Address) IsZero() bool      { return a == ZeroAddress }
func (id CredentialID) IsNil() bool { return id == 0 }
func (h Hash32) IsNil() bool        { return h == Hash32{} }

// MarshalText encodes the hash as 0x-prefixed hex.
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses 0x-prefixed (or bare) hex.
func (h *Hash32) UnmarshalText(b []byte) error {
	parsed, err := ParseHash32(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
