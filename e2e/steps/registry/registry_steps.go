package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	id "credregistry/pkg/domain"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTWithHeaders(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	AddressOf(actor string) string
	AuthHeaders(actor string) (map[string]string, error)
	Bootstrap(actor string) error
	SaveCredential(code string, credentialID uint64)
	CredentialID(code string) (uint64, error)
}

// RegisterSteps registers registry-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^the registry is owned by "([^"]*)"$`, steps.registryIsOwnedBy)
	ctx.Step(`^"([^"]*)" authorizes issuer "([^"]*)" with organization "([^"]*)"$`, steps.authorizeIssuer)
	ctx.Step(`^"([^"]*)" issues a credential to "([^"]*)" with code "([^"]*)"$`, steps.issueCredential)
	ctx.Step(`^"([^"]*)" revokes the credential with code "([^"]*)"$`, steps.revokeCredential)
	ctx.Step(`^I look up verification code "([^"]*)" on the ledger$`, steps.lookupCode)
	ctx.Step(`^I fetch the credential with code "([^"]*)"$`, steps.fetchCredential)
	ctx.Step(`^the response field "([^"]*)" should be the address of "([^"]*)"$`, steps.fieldShouldBeAddressOf)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) registryIsOwnedBy(ctx context.Context, owner string) error {
	return s.tc.Bootstrap(owner)
}

func (s *registrySteps) authorizeIssuer(ctx context.Context, caller, issuer, organization string) error {
	headers, err := s.tc.AuthHeaders(caller)
	if err != nil {
		return err
	}
	return s.tc.POSTWithHeaders("/registry/issuers", map[string]any{
		"address":      s.tc.AddressOf(issuer),
		"organization": organization,
	}, headers)
}

func (s *registrySteps) issueCredential(ctx context.Context, issuer, owner, code string) error {
	headers, err := s.tc.AuthHeaders(issuer)
	if err != nil {
		return err
	}
	err = s.tc.POSTWithHeaders("/registry/credentials", map[string]any{
		"credential_hash":   id.HashContent([]byte("credential:" + code)).String(),
		"metadata_hash":     id.HashContent([]byte("metadata:" + code)).String(),
		"owner":             s.tc.AddressOf(owner),
		"expires_at":        0,
		"verification_code": code,
	}, headers)
	if err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	credentialID, err := s.tc.GetResponseField("credential_id")
	if err != nil {
		return err
	}
	n, ok := credentialID.(float64)
	if !ok {
		return fmt.Errorf("credential_id is %T, want number", credentialID)
	}
	s.tc.SaveCredential(code, uint64(n))
	return nil
}

func (s *registrySteps) revokeCredential(ctx context.Context, caller, code string) error {
	credentialID, err := s.tc.CredentialID(code)
	if err != nil {
		return err
	}
	headers, err := s.tc.AuthHeaders(caller)
	if err != nil {
		return err
	}
	return s.tc.POSTWithHeaders(fmt.Sprintf("/registry/credentials/%d/revoke", credentialID), map[string]any{}, headers)
}

func (s *registrySteps) lookupCode(ctx context.Context, code string) error {
	return s.tc.GET("/registry/verify/"+code, nil)
}

func (s *registrySteps) fetchCredential(ctx context.Context, code string) error {
	credentialID, err := s.tc.CredentialID(code)
	if err != nil {
		return err
	}
	return s.tc.GET(fmt.Sprintf("/registry/credentials/%d", credentialID), nil)
}

func (s *registrySteps) fieldShouldBeAddressOf(ctx context.Context, field, actor string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(value) != s.tc.AddressOf(actor) {
		return fmt.Errorf("field %s: expected address of %s (%s) but got %v", field, actor, s.tc.AddressOf(actor), value)
	}
	return nil
}
