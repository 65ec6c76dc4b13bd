package handlers

import (
	"mission-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindAlreadyCompleted, services.KindOutOfStock:
		return fiber.StatusConflict
	case services.KindInsufficientPoints:
		return fiber.StatusUnprocessableEntity
	case services.KindInvalidArgument:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusServiceUnavailable
	}
}

// respondError writes err as {"error", "kind"} with the matching status.
// Store failures are not echoed to the client.
func respondError(c *fiber.Ctx, err error) error {
	kind := services.Kind(err)
	msg := err.Error()
	if kind == services.KindStoreUnavailable {
		msg = "ledger temporarily unavailable, retry later"
	}
	return c.Status(statusFor(kind)).JSON(fiber.Map{
		"error": msg,
		"kind":  kind,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  services.KindInvalidArgument,
	})
}
