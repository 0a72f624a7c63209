package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymeter/keymeter/internal/models"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTProviderVerify(t *testing.T) {
	provider := NewJWTProvider("test-secret")

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, "test-secret", jwt.MapClaims{
			"sub":   "user_123",
			"email": "dev@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		identity, err := provider.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user_123", identity.SubjectID)
		assert.Equal(t, "dev@example.com", identity.Email)
	})

	t.Run("email is optional", func(t *testing.T) {
		token := signToken(t, "test-secret", jwt.MapClaims{"sub": "user_456"})

		identity, err := provider.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user_456", identity.SubjectID)
		assert.Empty(t, identity.Email)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", jwt.MapClaims{"sub": "user_123"})

		_, err := provider.Verify(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, "test-secret", jwt.MapClaims{"email": "dev@example.com"})

		_, err := provider.Verify(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, "test-secret", jwt.MapClaims{
			"sub": "user_123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := provider.Verify(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := provider.Verify(context.Background(), "not-a-jwt")
		assert.Error(t, err)
	})
}

func TestNewProviderSelection(t *testing.T) {
	t.Run("jwt provider", func(t *testing.T) {
		provider, err := NewProvider(&models.AuthConfig{
			Provider: models.AuthProviderJWT,
			JWT:      &models.JWTAuthConfig{Secret: "test-secret"},
		})
		require.NoError(t, err)
		assert.IsType(t, &JWTProvider{}, provider)
	})

	t.Run("jwt provider without secret", func(t *testing.T) {
		_, err := NewProvider(&models.AuthConfig{Provider: models.AuthProviderJWT})
		assert.Error(t, err)
	})

	t.Run("clerk provider without secret", func(t *testing.T) {
		_, err := NewProvider(&models.AuthConfig{Provider: models.AuthProviderClerk})
		assert.Error(t, err)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewProvider(&models.AuthConfig{Provider: "saml"})
		assert.Error(t, err)
	})
}
