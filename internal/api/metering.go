package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keymeter/keymeter/internal/models"
	"github.com/keymeter/keymeter/internal/services/metering"
	"github.com/keymeter/keymeter/internal/services/middleware"
)

// MeterHandler serves the key-authenticated operations: status projection,
// best-effort verification and idempotent usage recording.
type MeterHandler struct {
	metering *metering.Service
}

func NewMeterHandler(meteringService *metering.Service) *MeterHandler {
	return &MeterHandler{metering: meteringService}
}

// Status handles GET /v1/keys/status. Read-only; never consumes quota.
func (h *MeterHandler) Status(c *fiber.Ctx) error {
	status, err := h.metering.Status(c.Context(), middleware.KeyFromContext(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(status)
}

// Verify handles GET and POST /v1/verify: consume one unit of quota with
// no idempotency token, so retried calls count again.
func (h *MeterHandler) Verify(c *fiber.Ctx) error {
	outcome, err := h.metering.Verify(c.Context(), middleware.KeyFromContext(c))
	if err != nil {
		return respondError(c, err)
	}

	if outcome.Status == metering.StatusLimitExceeded {
		return respondError(c, models.NewQuotaExceededError())
	}

	return c.JSON(fiber.Map{
		"status":     "success",
		"message":    "API key is valid.",
		"usageCount": outcome.UsageCount,
	})
}

type recordUsageRequest struct {
	TransactionID string `json:"transactionId"`
}

// RecordUsage handles POST /v1/usage: consume one unit of quota exactly
// once per transactionId. Replays answer from the ledger.
func (h *MeterHandler) RecordUsage(c *fiber.Ctx) error {
	var req recordUsageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing transactionId in request body.",
		})
	}

	outcome, err := h.metering.Record(c.Context(), middleware.KeyFromContext(c), req.TransactionID)
	if err != nil {
		return respondError(c, err)
	}

	switch outcome.Status {
	case metering.StatusLimitExceeded:
		return respondError(c, models.NewQuotaExceededError())
	case metering.StatusAlreadyRecorded:
		return c.JSON(fiber.Map{
			"status":                 "success",
			"message":                "Usage already recorded for this transactionId.",
			"newEffectiveUsageCount": outcome.UsageCount,
		})
	default:
		return c.JSON(fiber.Map{
			"status":                 "success",
			"message":                "Usage recorded successfully.",
			"newEffectiveUsageCount": outcome.UsageCount,
		})
	}
}
