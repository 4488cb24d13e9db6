package models

import (
	"strings"
	"time"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/validation"
)

type AuthorizeIssuerRequest struct {
	Address      string `json:"address" validate:"required,address"`
	Organization string `json:"organization" validate:"required,notblank,max=256"`
}

func (r *AuthorizeIssuerRequest) Normalize() {
	if r == nil {
		return
	}
	r.Address = strings.ToLower(strings.TrimSpace(r.Address))
	r.Organization = strings.TrimSpace(r.Organization)
}

func (r *AuthorizeIssuerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// IssueCredentialRequest is the issue boundary payload. ExpiresAt is unix seconds;
// zero means the credential never expires.
type IssueCredentialRequest struct {
	CredentialHash   string `json:"credential_hash" validate:"required,hash32"`
	MetadataHash     string `json:"metadata_hash" validate:"required,hash32"`
	Owner            string `json:"owner" validate:"required,address"`
	ExpiresAt        int64  `json:"expires_at" validate:"gte=0"`
	VerificationCode string `json:"verification_code" validate:"required,notblank,max=130"`
}

func (r *IssueCredentialRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialHash = strings.TrimSpace(r.CredentialHash)
	r.MetadataHash = strings.TrimSpace(r.MetadataHash)
	r.Owner = strings.ToLower(strings.TrimSpace(r.Owner))
	r.VerificationCode = strings.TrimSpace(r.VerificationCode)
}

func (r *IssueCredentialRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// ToCommand converts a validated request into an IssueCommand.
func (r *IssueCredentialRequest) ToCommand() (IssueCommand, error) {
	var cmd IssueCommand
	credentialHash, err := id.ParseHash32(r.CredentialHash)
	if err != nil {
		return cmd, err
	}
	metadataHash, err := id.ParseHash32(r.MetadataHash)
	if err != nil {
		return cmd, err
	}
	owner, err := id.ParseAddress(r.Owner)
	if err != nil {
		return cmd, err
	}
	cmd = IssueCommand{
		CredentialHash:   credentialHash,
		MetadataHash:     metadataHash,
		Owner:            owner,
		VerificationCode: r.VerificationCode,
	}
	if r.ExpiresAt > 0 {
		t := time.Unix(r.ExpiresAt, 0).UTC()
		cmd.ExpiresAt = &t
	}
	return cmd, nil
}
