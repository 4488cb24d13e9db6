package testutil

import (
	"fmt"
	"time"

	"credregistry/internal/registry/models"
	id "credregistry/pkg/domain"
)

// TestAddresses are deterministic identities for tests.
var TestAddresses = struct {
	Owner    id.Address
	Issuer1  id.Address
	Issuer2  id.Address
	Holder1  id.Address
	Holder2  id.Address
	Stranger id.Address
}{
	Owner:    id.AddressFromIdentity("owner"),
	Issuer1:  id.AddressFromIdentity("issuer-1"),
	Issuer2:  id.AddressFromIdentity("issuer-2"),
	Holder1:  id.AddressFromIdentity("holder-1"),
	Holder2:  id.AddressFromIdentity("holder-2"),
	Stranger: id.AddressFromIdentity("stranger"),
}

// FixedTime is a stable clock value for tests that do not care about the date.
var FixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewIssuer returns an authorized issuer record.
func NewIssuer(addr id.Address, organization string) *models.Issuer {
	return &models.Issuer{
		Address:      addr,
		Organization: organization,
		Authorized:   true,
		UpdatedAt:    FixedTime,
	}
}

// NewCredential returns an unrevoked, non-expiring credential with hashes derived from code.
func NewCredential(issuer, owner id.Address, code string) *models.Credential {
	return &models.Credential{
		CredentialHash:     id.HashContent([]byte("credential:" + code)),
		MetadataHash:       id.HashContent([]byte("metadata:" + code)),
		Owner:              owner,
		Issuer:             issuer,
		IssuerOrganization: "Test University",
		IssuedAt:           FixedTime,
		VerificationCode:   code,
	}
}

// NewIssueCommand returns a valid issue command for code.
func NewIssueCommand(owner id.Address, code string) models.IssueCommand {
	return models.IssueCommand{
		CredentialHash:   id.HashContent([]byte("credential:" + code)),
		MetadataHash:     id.HashContent([]byte("metadata:" + code)),
		Owner:            owner,
		VerificationCode: code,
	}
}

// Code returns a distinct verification code for index i.
func Code(i int) string {
	return fmt.Sprintf("CODE-%04d", i)
}
