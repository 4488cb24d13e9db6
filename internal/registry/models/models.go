package models

import (
	"strings"
	"time"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/platform/validation"
)

const (
	MaxVerificationCodeLength = validation.MaxVerificationCodeLength
	MaxOrganizationLength     = validation.MaxOrganizationLength
)

// Issuer is an entry in the owner-controlled allow-list. Issuers are never deleted,
// only flagged.
type Issuer struct {
	Address      id.Address `json:"address"`
	Organization string     `json:"organization"`
	Authorized   bool       `json:"authorized"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Credential is an append-only ledger record. Only Revoked/RevokedAt ever change
// after issuance.
type Credential struct {
	ID                 id.CredentialID `json:"id"`
	CredentialHash     id.Hash32       `json:"credential_hash"`
	MetadataHash       id.Hash32       `json:"metadata_hash"`
	Owner              id.Address      `json:"owner"`
	Issuer             id.Address      `json:"issuer"`
	IssuerOrganization string          `json:"issuer_organization"`
	IssuedAt           time.Time       `json:"issued_at"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	VerificationCode   string          `json:"verification_code"`
	Revoked            bool            `json:"revoked"`
	RevokedAt          *time.Time      `json:"revoked_at,omitempty"`
}

// IsExpiredAt reports whether the credential has an expiry at or before now.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// IsValidAt reports whether the credential is neither revoked nor expired at now.
func (c *Credential) IsValidAt(now time.Time) bool {
	return !c.Revoked && !c.IsExpiredAt(now)
}

// CanBeRevokedBy reports whether caller is the credential's issuer or owner.
func (c *Credential) CanBeRevokedBy(caller id.Address) bool {
	return !caller.IsNil() && (caller == c.Issuer || caller == c.Owner)
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}

// VerificationResult is the read-only on-ledger verdict for a verification code.
// CredentialID == 0 means the code was never issued.
type VerificationResult struct {
	IsValid        bool
	CredentialID   id.CredentialID
	CredentialHash id.Hash32
	Issuer         id.Address
	Owner          id.Address
	Organization   string
	IssuedAt       time.Time
	ExpiresAt      *time.Time
	IsRevoked      bool
	IsExpired      bool
}

// NotFoundResult is the verdict for unknown codes.
func NotFoundResult() *VerificationResult {
	return &VerificationResult{}
}

// Found reports whether the code resolved to a credential.
func (r *VerificationResult) Found() bool {
	return r != nil && !r.CredentialID.IsNil()
}

// At re-evaluates the time-dependent fields of a (possibly cached) result at now.
// Revocation is carried over as recorded.
func (r *VerificationResult) At(now time.Time) *VerificationResult {
	if !r.Found() {
		return NotFoundResult()
	}
	out := *r
	out.IsExpired = r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
	out.IsValid = !r.IsRevoked && !out.IsExpired
	return &out
}

// ResultFor evaluates a credential at now.
func ResultFor(c *Credential, now time.Time) *VerificationResult {
	return &VerificationResult{
		IsValid:        c.IsValidAt(now),
		CredentialID:   c.ID,
		CredentialHash: c.CredentialHash,
		Issuer:         c.Issuer,
		Owner:          c.Owner,
		Organization:   c.IssuerOrganization,
		IssuedAt:       c.IssuedAt,
		ExpiresAt:      c.ExpiresAt,
		IsRevoked:      c.Revoked,
		IsExpired:      c.IsExpiredAt(now),
	}
}

// IssueCommand carries the caller-supplied fields of a new credential.
type IssueCommand struct {
	CredentialHash   id.Hash32
	MetadataHash     id.Hash32
	Owner            id.Address
	ExpiresAt        *time.Time
	VerificationCode string
}

// Validate checks the command's shape. Authorization and uniqueness are checked
// by the service against the store.
func (c IssueCommand) Validate(now time.Time) error {
	if c.Owner.IsNil() || c.Owner.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "owner must be a non-zero address")
	}
	if c.CredentialHash.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "credential_hash is required")
	}
	if c.MetadataHash.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "metadata_hash is required")
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return dErrors.New(dErrors.CodeInvalidInput, "expires_at must be in the future")
	}
	if _, err := NormalizeVerificationCode(c.VerificationCode); err != nil {
		return err
	}
	return nil
}

// NormalizeVerificationCode trims the code and strips a single 0x prefix, so that
// "0xABC" and "ABC" index the same credential.
func NormalizeVerificationCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) > 2 && (code[:2] == "0x" || code[:2] == "0X") {
		code = code[2:]
	}
	if code == "" || code == "0x" || code == "0X" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verification_code is required")
	}
	if err := validation.CheckStringLength("verification_code", code, MaxVerificationCodeLength); err != nil {
		return "", err
	}
	return code, nil
}

// NormalizeOrganization trims and bounds an organization name.
func NormalizeOrganization(org string) (string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organization is required")
	}
	if err := validation.CheckStringLength("organization", org, MaxOrganizationLength); err != nil {
		return "", err
	}
	return org, nil
}
