package auth

import (
	"context"
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
)

// ClerkProvider verifies Clerk session tokens and resolves the owning user.
type ClerkProvider struct {
	secretKey string
}

func NewClerkProvider(secretKey string) *ClerkProvider {
	clerk.SetKey(secretKey)

	return &ClerkProvider{secretKey: secretKey}
}

func (p *ClerkProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return &Identity{
		SubjectID: claims.Subject,
		Email:     p.primaryEmail(ctx, claims.Subject),
	}, nil
}

// primaryEmail fetches the user's primary email address. The email is only
// stored alongside issued keys for support lookups, so a failed fetch
// degrades to an empty email rather than failing verification.
func (p *ClerkProvider) primaryEmail(ctx context.Context, userID string) string {
	usr, err := user.Get(ctx, userID)
	if err != nil {
		fiberlog.Warnf("clerk user lookup failed for %s: %v", userID, err)
		return ""
	}

	if usr.PrimaryEmailAddressID == nil {
		return ""
	}
	for _, addr := range usr.EmailAddresses {
		if addr.ID == *usr.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	return ""
}
