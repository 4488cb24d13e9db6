package service

import (
	"github.com/prometheus/client_golang/prometheus/testutil"

	dErrors "credregistry/pkg/domain-errors"
	fixtures "credregistry/pkg/testutil"
)

func (s *ServiceSuite) TestBootstrap() {
	s.Run("makes the owner an authorized issuer", func() {
		s.bootstrap()

		owner, err := s.service.Owner(s.ctx())
		s.Require().NoError(err)
		s.Equal(s.owner, owner)

		authorized, err := s.service.IsAuthorizedIssuer(s.ctx(), s.owner)
		s.Require().NoError(err)
		s.True(authorized)

		org, err := s.service.GetIssuerOrganization(s.ctx(), s.owner)
		s.Require().NoError(err)
		s.Equal("Registry Owner", org)
	})

	s.Run("same owner again is a no-op", func() {
		s.NoError(s.service.Bootstrap(s.ctx(), s.owner))
	})

	s.Run("different owner is a conflict", func() {
		err := s.service.Bootstrap(s.ctx(), fixtures.TestAddresses.Stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		owner, err := s.service.Owner(s.ctx())
		s.Require().NoError(err)
		s.Equal(s.owner, owner)
	})
}

func (s *ServiceSuite) TestOwnerBeforeBootstrap() {
	_, err := s.service.Owner(s.ctx())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAuthorizeIssuer() {
	s.bootstrap()

	s.Run("owner authorizes and re-authorizing updates the organization", func() {
		s.authorize(s.issuer, "Acme")
		s.authorize(s.issuer, "  Acme University  ")

		org, err := s.service.GetIssuerOrganization(s.ctx(), s.issuer)
		s.Require().NoError(err)
		s.Equal("Acme University", org)
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.IssuersAuthorized))
	})

	s.Run("non-owner is forbidden and nothing changes", func() {
		other := fixtures.TestAddresses.Issuer2
		err := s.service.AuthorizeIssuer(s.ctx(), s.issuer, other, "Rogue")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(msgNotOwner, err.Error())

		authorized, err := s.service.IsAuthorizedIssuer(s.ctx(), other)
		s.Require().NoError(err)
		s.False(authorized)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("authorize_issuer", "forbidden")))
	})

	s.Run("missing caller is unauthorized", func() {
		err := s.service.AuthorizeIssuer(s.ctx(), "", s.issuer, "Acme")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("blank organization is invalid", func() {
		err := s.service.AuthorizeIssuer(s.ctx(), s.owner, s.issuer, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestAuthorizeIssuerWithoutOwner() {
	err := s.service.AuthorizeIssuer(s.ctx(), s.owner, s.issuer, "Acme")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "no owner means nobody is the owner")
}

func (s *ServiceSuite) TestRevokeIssuer() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	credID := s.issue("CODE-KEEP")

	s.Run("non-owner is forbidden", func() {
		err := s.service.RevokeIssuer(s.ctx(), s.holder, s.issuer)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		authorized, err := s.service.IsAuthorizedIssuer(s.ctx(), s.issuer)
		s.Require().NoError(err)
		s.True(authorized)
	})

	s.Run("revoked issuer cannot issue but past credentials stay valid", func() {
		s.Require().NoError(s.service.RevokeIssuer(s.ctx(), s.owner, s.issuer))

		authorized, err := s.service.IsAuthorizedIssuer(s.ctx(), s.issuer)
		s.Require().NoError(err)
		s.False(authorized)

		_, err = s.service.IssueCredential(s.ctx(), s.issuer, fixtures.NewIssueCommand(s.holder, "CODE-NEW"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		result, err := s.service.VerifyCredential(s.ctx(), "CODE-KEEP")
		s.Require().NoError(err)
		s.True(result.IsValid)
		s.Equal(credID, result.CredentialID)
		s.Equal("Acme", result.Organization)
		s.Equal(s.issuer, result.Issuer)
	})

	s.Run("re-authorizing under a new name keeps the frozen organization", func() {
		s.authorize(s.issuer, "Acme Renamed")

		result, err := s.service.VerifyCredential(s.ctx(), "CODE-KEEP")
		s.Require().NoError(err)
		s.Equal("Acme", result.Organization)
	})

	s.Run("unknown address is recorded as not authorized", func() {
		stranger := fixtures.TestAddresses.Stranger
		s.Require().NoError(s.service.RevokeIssuer(s.ctx(), s.owner, stranger))

		issuer, err := s.service.GetIssuer(s.ctx(), stranger)
		s.Require().NoError(err)
		s.False(issuer.Authorized)
		s.Empty(issuer.Organization)
	})
}

func (s *ServiceSuite) TestGetIssuerOrganizationUnknown() {
	org, err := s.service.GetIssuerOrganization(s.ctx(), fixtures.TestAddresses.Stranger)
	s.Require().NoError(err)
	s.Empty(org)
}
