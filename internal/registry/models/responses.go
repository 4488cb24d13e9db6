package models

import (
	"encoding/json"
	"time"
)

// UnixOrNever renders an optional expiry as unix seconds, or "never".
type UnixOrNever struct {
	t *time.Time
}

func NewUnixOrNever(t *time.Time) UnixOrNever { return UnixOrNever{t: t} }

func (u UnixOrNever) MarshalJSON() ([]byte, error) {
	if u.t == nil {
		return []byte(`"never"`), nil
	}
	return json.Marshal(u.t.Unix())
}

type OwnerResponse struct {
	Owner string `json:"owner"`
}

type IssuerResponse struct {
	Address      string `json:"address"`
	Organization string `json:"organization"`
	Authorized   bool   `json:"authorized"`
}

type IssueCredentialResponse struct {
	CredentialID uint64 `json:"credential_id"`
}

type CredentialResponse struct {
	ID                 uint64      `json:"id"`
	CredentialHash     string      `json:"credential_hash"`
	MetadataHash       string      `json:"metadata_hash"`
	Owner              string      `json:"owner"`
	Issuer             string      `json:"issuer"`
	IssuerOrganization string      `json:"issuer_organization"`
	IssuedAt           int64       `json:"issued_at"`
	ExpiresAt          UnixOrNever `json:"expires_at"`
	VerificationCode   string      `json:"verification_code"`
	IsRevoked          bool        `json:"is_revoked"`
}

func ToCredentialResponse(c *Credential) CredentialResponse {
	return CredentialResponse{
		ID:                 uint64(c.ID),
		CredentialHash:     c.CredentialHash.String(),
		MetadataHash:       c.MetadataHash.String(),
		Owner:              c.Owner.String(),
		Issuer:             c.Issuer.String(),
		IssuerOrganization: c.IssuerOrganization,
		IssuedAt:           c.IssuedAt.Unix(),
		ExpiresAt:          NewUnixOrNever(c.ExpiresAt),
		VerificationCode:   c.VerificationCode,
		IsRevoked:          c.Revoked,
	}
}

type CredentialListResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
}

// VerificationResultResponse mirrors the ledger's verifyCredential tuple.
type VerificationResultResponse struct {
	IsValid        bool        `json:"is_valid"`
	CredentialID   uint64      `json:"credential_id"`
	CredentialHash string      `json:"credential_hash,omitempty"`
	Issuer         string      `json:"issuer,omitempty"`
	Owner          string      `json:"owner,omitempty"`
	Organization   string      `json:"organization,omitempty"`
	IssuedAt       int64       `json:"issued_at,omitempty"`
	ExpiresAt      UnixOrNever `json:"expires_at"`
	IsRevoked      bool        `json:"is_revoked"`
}

func ToVerificationResultResponse(r *VerificationResult) VerificationResultResponse {
	if !r.Found() {
		return VerificationResultResponse{ExpiresAt: NewUnixOrNever(nil)}
	}
	return VerificationResultResponse{
		IsValid:        r.IsValid,
		CredentialID:   uint64(r.CredentialID),
		CredentialHash: r.CredentialHash.String(),
		Issuer:         r.Issuer.String(),
		Owner:          r.Owner.String(),
		Organization:   r.Organization,
		IssuedAt:       r.IssuedAt.Unix(),
		ExpiresAt:      NewUnixOrNever(r.ExpiresAt),
		IsRevoked:      r.IsRevoked,
	}
}

type EventListResponse struct {
	Events []*Event `json:"events"`
}
