package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// APIKeyLocal is the fiber locals slot the extracted key is stored in.
	APIKeyLocal = "api_key"

	defaultHeaderName = "X-API-KEY"
)

// APIKeyConfig controls which headers the key middleware accepts.
type APIKeyConfig struct {
	HeaderNames []string
}

func DefaultAPIKeyConfig() *APIKeyConfig {
	return &APIKeyConfig{
		HeaderNames: []string{defaultHeaderName},
	}
}

// RequireAPIKey extracts the caller's API key from the configured headers
// and rejects the request when none is present. Validation of the key
// itself happens in the metering service against live store state.
func RequireAPIKey(config *APIKeyConfig) fiber.Handler {
	if config == nil || len(config.HeaderNames) == 0 {
		config = DefaultAPIKeyConfig()
	}

	return func(c *fiber.Ctx) error {
		for _, header := range config.HeaderNames {
			if key := strings.TrimSpace(c.Get(header)); key != "" {
				c.Locals(APIKeyLocal, key)
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "API key missing.",
		})
	}
}

// KeyFromContext returns the API key stored by RequireAPIKey.
func KeyFromContext(c *fiber.Ctx) string {
	key, _ := c.Locals(APIKeyLocal).(string)
	return key
}
