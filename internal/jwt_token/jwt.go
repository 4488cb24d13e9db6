package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "credregistry/pkg/domain"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/requestcontext"
)

const (
	// DefaultAudience is the audience of tokens accepted by the registry API.
	DefaultAudience = "credregistry-api"
	DefaultTokenTTL = 15 * time.Minute
)

// CallerTokenClaims identifies the account acting on the registry.
// The registered subject carries the caller address.
type CallerTokenClaims struct {
	Env string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates caller tokens (HS256).
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
	env        string
}

func NewJWTService(signingKey string, issuer string, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// SetEnv annotates issued tokens with an environment string (e.g. "dev").
func (s *JWTService) SetEnv(env string) {
	s.env = env
}

// GenerateCallerToken returns a signed token for caller and its JTI.
func (s *JWTService) GenerateCallerToken(ctx context.Context, caller id.Address) (string, string, error) {
	if caller.IsNil() {
		return "", "", dErrors.New(dErrors.CodeInvalidInput, "caller address cannot be empty")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	jti := hex.EncodeToString(b)
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, CallerTokenClaims{
		Env: s.env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*CallerTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &CallerTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*CallerTokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Authenticate validates token and returns the caller address in its subject.
func (s *JWTService) Authenticate(_ context.Context, token string) (id.Address, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return "", err
	}
	caller, err := id.ParseAddress(claims.Subject)
	if err != nil {
		return "", &dErrors.Error{Code: dErrors.CodeUnauthorized, Message: "token subject is not an address", Err: err}
	}
	return caller, nil
}
