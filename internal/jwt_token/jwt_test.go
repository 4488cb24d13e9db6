package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
)

const issuerAddr = id.Address("0x1111111111111111111111111111111111111111")

var jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience", time.Minute)

func Test_GenerateCallerToken(t *testing.T) {
	token, jti, err := jwtService.GenerateCallerToken(context.Background(), issuerAddr)
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, issuerAddr.String(), claims.Subject)
	assert.Equal(t, jti, claims.ID)
}

func Test_GenerateCallerToken_RejectsEmptyCaller(t *testing.T) {
	_, _, err := jwtService.GenerateCallerToken(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), time.Now().Add(-time.Hour))
	token, _, err := jwtService.GenerateCallerToken(ctx, issuerAddr)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorContains(t, err, "token expired")
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTService("test-signing-key", "someone-else", "test-audience", time.Minute)
	token, _, err := other.GenerateCallerToken(context.Background(), issuerAddr)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, CallerTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  issuerAddr.String(),
			Issuer:   "test-issuer",
			Audience: []string{"test-audience"},
		},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(signed)
	assert.Error(t, err)
}

func Test_Authenticate(t *testing.T) {
	token, _, err := jwtService.GenerateCallerToken(context.Background(), issuerAddr)
	require.NoError(t, err)

	caller, err := jwtService.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, issuerAddr, caller)
}

func Test_Authenticate_RejectsNonAddressSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CallerTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.Authenticate(context.Background(), signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
