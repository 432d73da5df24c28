package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewVerifier("secret", time.Hour)

	tok, err := v.Issue(RoleStudent, 42)
	require.NoError(t, err)

	claims, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "42", claims.Subject)
}

func TestValidateWrongSecret(t *testing.T) {
	tok, err := NewVerifier("secret", time.Hour).Issue(RoleTeacher, 7)
	require.NoError(t, err)

	_, err = NewVerifier("other", time.Hour).Validate(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateExpired(t *testing.T) {
	v := NewVerifier("secret", time.Minute)
	issued := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return issued }

	tok, err := v.Issue(RoleStudent, 1)
	require.NoError(t, err)

	v.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = v.Validate(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{Role: RoleStudent, UserID: 1}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewVerifier("secret", time.Hour).Validate(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	v := NewVerifier("secret", time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "admin",
		UserID:           3,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Validate(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
