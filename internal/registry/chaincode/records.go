package chaincode

import (
	"credregistry/internal/registry/models"
)

// Records returned to chaincode clients use plain fields only; the contract
// metadata schema is derived from them.

// CredentialRecord is a ledger credential. ExpiresAt and RevokedAt are unix
// seconds, 0 when unset.
type CredentialRecord struct {
	ID                 uint64 `json:"id"`
	CredentialHash     string `json:"credential_hash"`
	MetadataHash       string `json:"metadata_hash"`
	Owner              string `json:"owner"`
	Issuer             string `json:"issuer"`
	IssuerOrganization string `json:"issuer_organization"`
	IssuedAt           int64  `json:"issued_at"`
	ExpiresAt          int64  `json:"expires_at"`
	VerificationCode   string `json:"verification_code"`
	Revoked            bool   `json:"revoked"`
	RevokedAt          int64  `json:"revoked_at"`
}

// VerificationRecord is the verification tuple. CredentialID 0 means not found.
type VerificationRecord struct {
	IsValid        bool   `json:"is_valid"`
	CredentialID   uint64 `json:"credential_id"`
	CredentialHash string `json:"credential_hash"`
	Issuer         string `json:"issuer"`
	Owner          string `json:"owner"`
	Organization   string `json:"organization"`
	IssuedAt       int64  `json:"issued_at"`
	ExpiresAt      int64  `json:"expires_at"`
	IsRevoked      bool   `json:"is_revoked"`
}

func toCredentialRecord(c *models.Credential) *CredentialRecord {
	rec := &CredentialRecord{
		ID:                 uint64(c.ID),
		CredentialHash:     c.CredentialHash.String(),
		MetadataHash:       c.MetadataHash.String(),
		Owner:              c.Owner.String(),
		Issuer:             c.Issuer.String(),
		IssuerOrganization: c.IssuerOrganization,
		IssuedAt:           c.IssuedAt.Unix(),
		VerificationCode:   c.VerificationCode,
		Revoked:            c.Revoked,
	}
	if c.ExpiresAt != nil {
		rec.ExpiresAt = c.ExpiresAt.Unix()
	}
	if c.RevokedAt != nil {
		rec.RevokedAt = c.RevokedAt.Unix()
	}
	return rec
}

func toVerificationRecord(r *models.VerificationResult) *VerificationRecord {
	if !r.Found() {
		return &VerificationRecord{}
	}
	rec := &VerificationRecord{
		IsValid:        r.IsValid,
		CredentialID:   uint64(r.CredentialID),
		CredentialHash: r.CredentialHash.String(),
		Issuer:         r.Issuer.String(),
		Owner:          r.Owner.String(),
		Organization:   r.Organization,
		IssuedAt:       r.IssuedAt.Unix(),
		IsRevoked:      r.IsRevoked,
	}
	if r.ExpiresAt != nil {
		rec.ExpiresAt = r.ExpiresAt.Unix()
	}
	return rec
}
