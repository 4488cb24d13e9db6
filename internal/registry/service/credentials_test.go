package service

import (
	"context"
	"time"

	"credregistry/internal/registry/models"
	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
	"credregistry/pkg/testutil"
)

func (s *ServiceSuite) TestIssueAndVerifyWithOrganization() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")

	credID := s.issue("CODE-1")

	result, err := s.service.VerifyCredential(s.ctx(), "CODE-1")
	s.Require().NoError(err)
	s.True(result.IsValid)
	s.Equal(credID, result.CredentialID)
	s.Equal("Acme", result.Organization)
	s.Equal(s.issuer, result.Issuer)
	s.Equal(s.holder, result.Owner)
	s.Equal(testutil.FixedTime, result.IssuedAt)
	s.Nil(result.ExpiresAt)
	s.False(result.IsRevoked)
}

func (s *ServiceSuite) TestDuplicateCodeLeavesTheOriginalUntouched() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	credID := s.issue("CODE-2")
	before, err := s.service.GetCredential(s.ctx(), credID)
	s.Require().NoError(err)

	_, err = s.service.IssueCredential(s.ctx(), s.issuer, testutil.NewIssueCommand(testutil.TestAddresses.Holder2, "CODE-2"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(msgDuplicateCode, err.Error())

	after, err := s.service.GetCredential(s.ctx(), credID)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Equal([]models.EventType{models.EventCredentialIssued}, s.events(credID))
}

func (s *ServiceSuite) TestIssueCredential() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")

	s.Run("ids increase and are not consumed by failed attempts", func() {
		first := s.issue("SEQ-1")
		_, err := s.service.IssueCredential(s.ctx(), s.issuer, testutil.NewIssueCommand(s.holder, "SEQ-1"))
		s.Require().Error(err)
		_, err = s.service.IssueCredential(s.ctx(), testutil.TestAddresses.Stranger, testutil.NewIssueCommand(s.holder, "SEQ-X"))
		s.Require().Error(err)
		second := s.issue("SEQ-2")
		s.Greater(uint64(second), uint64(first))
	})

	s.Run("0x prefix names the same code", func() {
		s.issue("0xABCDEF")
		_, err := s.service.IssueCredential(s.ctx(), s.issuer, testutil.NewIssueCommand(s.holder, "ABCDEF"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		result, err := s.service.VerifyCredential(s.ctx(), "0xABCDEF")
		s.Require().NoError(err)
		s.True(result.Found())
	})

	s.Run("unauthorized issuer leaves no trace", func() {
		stranger := testutil.TestAddresses.Stranger
		_, err := s.service.IssueCredential(s.ctx(), stranger, testutil.NewIssueCommand(s.holder, "ROGUE"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(msgNotAuthorizedIssuer, err.Error())

		result, err := s.service.VerifyCredential(s.ctx(), "ROGUE")
		s.Require().NoError(err)
		s.False(result.Found())
	})

	s.Run("missing caller is unauthorized", func() {
		_, err := s.service.IssueCredential(s.ctx(), "", testutil.NewIssueCommand(s.holder, "ANON"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("malformed commands are invalid input", func() {
		zeroOwner := testutil.NewIssueCommand(id.ZeroAddress, "ZERO-OWNER")
		noHash := testutil.NewIssueCommand(s.holder, "NO-HASH")
		noHash.CredentialHash = id.Hash32{}
		noMetadata := testutil.NewIssueCommand(s.holder, "NO-METADATA")
		noMetadata.MetadataHash = id.Hash32{}
		past := testutil.FixedTime.Add(-time.Hour)
		expired := testutil.NewIssueCommand(s.holder, "PAST")
		expired.ExpiresAt = &past
		blankCode := testutil.NewIssueCommand(s.holder, "   ")

		for name, cmd := range map[string]models.IssueCommand{
			"zero owner":     zeroOwner,
			"missing hash":     noHash,
			"missing metadata": noMetadata,
			"expiry in past":   expired,
			"blank code":       blankCode,
		} {
			_, err := s.service.IssueCredential(s.ctx(), s.issuer, cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), name)
		}
	})
}

func (s *ServiceSuite) TestConcurrentIssueSameCode() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")

	result := testutil.RunConcurrent(25, func(idx int) error {
		_, err := s.service.IssueCredential(context.Background(), s.issuer, testutil.NewIssueCommand(s.holder, "RACE"))
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(24), result.Conflicts)
	s.Zero(result.Errors)

	owned, err := s.service.ListByOwner(s.ctx(), s.holder)
	s.Require().NoError(err)
	s.Len(owned, 1)
}

func (s *ServiceSuite) TestVerifyCredential() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")

	s.Run("unknown code is not found without error", func() {
		result, err := s.service.VerifyCredential(s.ctx(), "NEVER-ISSUED")
		s.Require().NoError(err)
		s.False(result.IsValid)
		s.True(result.CredentialID.IsNil())
	})

	s.Run("empty code is invalid input", func() {
		_, err := s.service.VerifyCredential(s.ctx(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("expiry is exclusive", func() {
		expiry := testutil.FixedTime.Add(24 * time.Hour)
		cmd := testutil.NewIssueCommand(s.holder, "EXPIRING")
		cmd.ExpiresAt = &expiry
		_, err := s.service.IssueCredential(s.ctx(), s.issuer, cmd)
		s.Require().NoError(err)

		before, err := s.service.VerifyCredential(requestcontext.WithTime(context.Background(), expiry.Add(-time.Second)), "EXPIRING")
		s.Require().NoError(err)
		s.True(before.IsValid)

		at, err := s.service.VerifyCredential(requestcontext.WithTime(context.Background(), expiry), "EXPIRING")
		s.Require().NoError(err)
		s.False(at.IsValid)
		s.True(at.IsExpired)
		s.False(at.IsRevoked)
	})

	s.Run("no expiry is valid indefinitely", func() {
		s.issue("FOREVER")
		farFuture := testutil.FixedTime.AddDate(100, 0, 0)
		result, err := s.service.VerifyCredential(requestcontext.WithTime(context.Background(), farFuture), "FOREVER")
		s.Require().NoError(err)
		s.True(result.IsValid)
	})
}

func (s *ServiceSuite) TestGetCredentialNotFound() {
	_, err := s.service.GetCredential(s.ctx(), 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Events(s.ctx(), 42)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListings() {
	s.bootstrap()
	s.authorize(s.issuer, "Acme")
	s.authorize(testutil.TestAddresses.Issuer2, "Beta")

	s.issue("L-1")
	_, err := s.service.IssueCredential(s.ctx(), testutil.TestAddresses.Issuer2, testutil.NewIssueCommand(s.holder, "L-2"))
	s.Require().NoError(err)
	_, err = s.service.IssueCredential(s.ctx(), s.issuer, testutil.NewIssueCommand(testutil.TestAddresses.Holder2, "L-3"))
	s.Require().NoError(err)

	owned, err := s.service.ListByOwner(s.ctx(), s.holder)
	s.Require().NoError(err)
	s.Require().Len(owned, 2)
	s.Equal("L-1", owned[0].VerificationCode)
	s.Equal("Beta", owned[1].IssuerOrganization)

	issued, err := s.service.ListByIssuer(s.ctx(), s.issuer)
	s.Require().NoError(err)
	s.Require().Len(issued, 2)
	s.Equal("L-3", issued[1].VerificationCode)
}
