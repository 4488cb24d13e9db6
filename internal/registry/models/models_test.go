package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
)

var (
	issuerAddr   = id.Address("0x1111111111111111111111111111111111111111")
	ownerAddr    = id.Address("0x2222222222222222222222222222222222222222")
	strangerAddr = id.Address("0x3333333333333333333333333333333333333333")
	now          = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func TestNormalizeVerificationCode(t *testing.T) {
	cases := map[string]string{
		"CODE-1":     "CODE-1",
		"  CODE-1  ": "CODE-1",
		"0xabc123":   "abc123",
		"0XABC123":   "ABC123",
		"0x0xnested": "0xnested",
	}
	for in, want := range cases {
		got, err := NormalizeVerificationCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "   ", "0x", strings.Repeat("c", MaxVerificationCodeLength+1)} {
		_, err := NormalizeVerificationCode(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), bad)
	}
}

// Invariant: a credential is valid iff not revoked and (no expiry or now < expiry).
func TestCredential_IsValidAt(t *testing.T) {
	expiry := now.Add(time.Hour)
	c := &Credential{ID: 1, ExpiresAt: &expiry}

	assert.True(t, c.IsValidAt(now))
	assert.True(t, c.IsValidAt(expiry.Add(-time.Nanosecond)))
	assert.False(t, c.IsValidAt(expiry), "expiry instant itself is no longer valid")
	assert.True(t, c.IsExpiredAt(expiry))

	never := &Credential{ID: 2}
	assert.True(t, never.IsValidAt(now.AddDate(100, 0, 0)))

	never.Revoked = true
	assert.False(t, never.IsValidAt(now))
}

func TestCredential_CanBeRevokedBy(t *testing.T) {
	c := &Credential{Issuer: issuerAddr, Owner: ownerAddr}

	assert.True(t, c.CanBeRevokedBy(issuerAddr))
	assert.True(t, c.CanBeRevokedBy(ownerAddr))
	assert.False(t, c.CanBeRevokedBy(strangerAddr))
	assert.False(t, c.CanBeRevokedBy(""))
}

func TestCredential_CloneIsDeep(t *testing.T) {
	expiry := now.Add(time.Hour)
	c := &Credential{ID: 1, ExpiresAt: &expiry}

	clone := c.Clone()
	*clone.ExpiresAt = now
	clone.Revoked = true

	assert.Equal(t, now.Add(time.Hour), *c.ExpiresAt)
	assert.False(t, c.Revoked)
}

func TestIssueCommand_Validate(t *testing.T) {
	valid := func() IssueCommand {
		return IssueCommand{
			CredentialHash:   id.HashContent([]byte("diploma")),
			MetadataHash:     id.HashContent([]byte("diploma-metadata")),
			Owner:            ownerAddr,
			VerificationCode: "CODE-1",
		}
	}

	require.NoError(t, valid().Validate(now))

	zeroOwner := valid()
	zeroOwner.Owner = id.ZeroAddress
	assert.True(t, dErrors.HasCode(zeroOwner.Validate(now), dErrors.CodeInvalidInput))

	noHash := valid()
	noHash.CredentialHash = id.Hash32{}
	assert.True(t, dErrors.HasCode(noHash.Validate(now), dErrors.CodeInvalidInput))

	noMetadata := valid()
	noMetadata.MetadataHash = id.Hash32{}
	err := noMetadata.Validate(now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.EqualError(t, err, "metadata_hash is required")

	past := valid()
	expired := now.Add(-time.Second)
	past.ExpiresAt = &expired
	assert.True(t, dErrors.HasCode(past.Validate(now), dErrors.CodeInvalidInput))

	noCode := valid()
	noCode.VerificationCode = " "
	assert.True(t, dErrors.HasCode(noCode.Validate(now), dErrors.CodeInvalidInput))
}

func TestResultFor(t *testing.T) {
	c := &Credential{
		ID:                 7,
		Issuer:             issuerAddr,
		Owner:              ownerAddr,
		IssuerOrganization: "Acme",
		IssuedAt:           now,
		Revoked:            true,
	}

	r := ResultFor(c, now)
	assert.True(t, r.Found())
	assert.False(t, r.IsValid)
	assert.True(t, r.IsRevoked)
	assert.Equal(t, "Acme", r.Organization)

	assert.False(t, NotFoundResult().Found())
}

func TestUnixOrNever(t *testing.T) {
	b, err := json.Marshal(NewUnixOrNever(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `"never"`, string(b))

	b, err = json.Marshal(NewUnixOrNever(&now))
	require.NoError(t, err)
	assert.Equal(t, "1772366400", string(b))
}

func TestIssueCredentialRequest_ToCommand(t *testing.T) {
	metadataHash := id.HashContent([]byte("m"))
	req := &IssueCredentialRequest{
		CredentialHash:   id.HashContent([]byte("c")).String(),
		MetadataHash:     metadataHash.String(),
		Owner:            " 0x2222222222222222222222222222222222222222 ",
		ExpiresAt:        now.Unix(),
		VerificationCode: " CODE-1 ",
	}
	req.Normalize()
	require.NoError(t, req.Validate())

	cmd, err := req.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, cmd.Owner)
	assert.Equal(t, "CODE-1", cmd.VerificationCode)
	require.NotNil(t, cmd.ExpiresAt)
	assert.True(t, now.Equal(*cmd.ExpiresAt))
	assert.Equal(t, metadataHash, cmd.MetadataHash)

	req.ExpiresAt = 0
	cmd, err = req.ToCommand()
	require.NoError(t, err)
	assert.Nil(t, cmd.ExpiresAt)

	req.MetadataHash = ""
	assert.Error(t, req.Validate(), "metadata_hash is required")
}
