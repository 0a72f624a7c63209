package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/keymeter/keymeter/internal/models"
)

// respondError logs the internal error and returns the sanitized public
// message. The two must stay separate: operators get the cause, callers
// never do.
func respondError(c *fiber.Ctx, err error) error {
	sanitized := models.SanitizeError(err)

	if sanitized.StatusCode >= fiber.StatusInternalServerError {
		fiberlog.Errorf("%s %s failed: %v", c.Method(), c.Path(), err)
	} else {
		fiberlog.Debugf("%s %s rejected: %v", c.Method(), c.Path(), err)
	}

	return c.Status(sanitized.StatusCode).JSON(fiber.Map{
		"error": sanitized.Message,
	})
}
