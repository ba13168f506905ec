package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	service, err := NewJWTService(testSecret, 15*time.Minute)
	require.NoError(t, err)
	return service
}

func TestNewJWTService(t *testing.T) {
	service := newTestJWTService(t)
	assert.NotNil(t, service)
	assert.Equal(t, 15*time.Minute, service.GetAccessTokenExpiry())
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	service, err := NewJWTService("short", time.Minute)

	assert.ErrorIs(t, err, ErrSecretTooShort)
	assert.Nil(t, service)
}

func TestJWTService_GenerateAccessToken_Success(t *testing.T) {
	service := newTestJWTService(t)

	token, expiresAt, err := service.GenerateAccessToken("admin", RoleAdmin)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
}

func TestJWTService_ValidateAccessToken_Valid(t *testing.T) {
	service := newTestJWTService(t)

	token, _, err := service.GenerateAccessToken("admin", RoleAdmin)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "ec-checkout", claims.Issuer)
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	service := newTestJWTService(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, _, err := service.GenerateAccessToken("admin", RoleAdmin)
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(time.Hour) }
	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_Invalid(t *testing.T) {
	service := newTestJWTService(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9.eyJyb2xlIjoiYWRtaW4ifQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateAccessToken_WrongSecret(t *testing.T) {
	service := newTestJWTService(t)
	other, err := NewJWTService("another-secret-key-that-is-long-enough", 15*time.Minute)
	require.NoError(t, err)

	token, _, err := other.GenerateAccessToken("admin", RoleAdmin)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_WrongIssuer(t *testing.T) {
	service := newTestJWTService(t)
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, got)
}

func TestJWTService_ValidateAccessToken_WrongSigningMethod(t *testing.T) {
	service := newTestJWTService(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}
