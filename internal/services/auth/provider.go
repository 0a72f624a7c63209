package auth

import (
	"context"
	"fmt"

	"github.com/keymeter/keymeter/internal/models"
)

// Identity is the caller identity extracted from a verified bearer token.
// SubjectID is the stable owner identifier keys are bound to; Email is
// informational and may be empty when the provider does not expose one.
type Identity struct {
	SubjectID string
	Email     string
}

// IdentityProvider verifies a raw bearer token and returns the identity it
// asserts. Implementations must not trust any claim before verification.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// NewProvider builds the identity provider selected by the auth config.
func NewProvider(cfg *models.AuthConfig) (IdentityProvider, error) {
	switch cfg.Provider {
	case models.AuthProviderClerk:
		if cfg.Clerk == nil || cfg.Clerk.SecretKey == "" {
			return nil, fmt.Errorf("clerk provider selected but no secret key configured")
		}
		return NewClerkProvider(cfg.Clerk.SecretKey), nil
	case models.AuthProviderJWT:
		if cfg.JWT == nil || cfg.JWT.Secret == "" {
			return nil, fmt.Errorf("jwt provider selected but no signing secret configured")
		}
		return NewJWTProvider(cfg.JWT.Secret), nil
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", cfg.Provider)
	}
}
