package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	assert.Equal(t, "credential not found", New(CodeNotFound, "credential not found").Error())
	assert.Equal(t, "not_found", (&Error{Code: CodeNotFound}).Error())

	cause := errors.New("connection reset")
	err := &Error{Code: CodeUnavailable, Err: cause}
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestIsMatchesByCode(t *testing.T) {
	issuer := New(CodeForbidden, "not an authorized issuer")
	owner := New(CodeForbidden, "caller is not the registry owner")

	assert.ErrorIs(t, issuer, owner)
	assert.NotErrorIs(t, issuer, New(CodeNotFound, ""))
	assert.NotErrorIs(t, issuer, errors.New("forbidden"))

	nested := fmt.Errorf("revoke: %w", &Error{Code: CodeInternal, Err: New(CodeNotFound, "credential not found")})
	assert.ErrorIs(t, nested, &Error{Code: CodeNotFound})
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
		want Code
	}{
		{"plain cause takes the given code", errors.New("pq: deadlock"), CodeInternal, CodeInternal},
		{"domain cause keeps its code", New(CodeConflict, "verification code already used"), CodeInternal, CodeConflict},
		{"code found through fmt wrapping", fmt.Errorf("insert: %w", New(CodeTimeout, "slow")), CodeInternal, CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.code, "issue credential")

			code, ok := CodeOf(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, "issue credential", wrapped.Error())
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestCodeOfAndHasCode(t *testing.T) {
	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
	_, ok = CodeOf(nil)
	assert.False(t, ok)

	err := fmt.Errorf("handler: %w", New(CodeNotFound, "issuer not found"))
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeInternal))
	assert.False(t, HasCode(nil, CodeNotFound))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeUnavailable, "ledger unavailable")))
	assert.True(t, Retryable(Wrap(New(CodeTimeout, "slow"), CodeInternal, "wrapped")))

	assert.False(t, Retryable(New(CodeConflict, "verification code already used")))
	assert.False(t, Retryable(New(CodeForbidden, "not authorized issuer")))
	assert.False(t, Retryable(errors.New("plain")))
}
