package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/keymeter/keymeter/internal/services/auth"
	"github.com/keymeter/keymeter/internal/services/issuer"
)

// KeyHandler serves key issuance: authenticate the bearer identity token,
// then return the owner's single active key, minting one on first use.
type KeyHandler struct {
	issuer   *issuer.Service
	provider auth.IdentityProvider
}

func NewKeyHandler(issuerService *issuer.Service, provider auth.IdentityProvider) *KeyHandler {
	return &KeyHandler{
		issuer:   issuerService,
		provider: provider,
	}
}

// IssueKey handles POST and GET /v1/keys. The response body is the bare
// key string: 200 when the owner already held one, 201 when it was minted
// by this call.
func (h *KeyHandler) IssueKey(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized: Missing or invalid token.",
		})
	}

	identity, err := h.provider.Verify(c.Context(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized: Missing or invalid token.",
		})
	}

	key, created, err := h.issuer.IssueOrFetch(c.Context(), identity)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).SendString(key)
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
