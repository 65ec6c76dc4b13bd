// middleware/auth.go
package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LocalUserID is the fiber.Locals key holding the caller's platform id.
const LocalUserID = "external_user_id"

// UserContextMiddleware reads the caller identity the gateway forwards in
// X-User-ID. Requests without it pass through with id 0.
func UserContextMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			c.Locals(LocalUserID, int64(0))
			return c.Next()
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id == 0 {
			log.Debug("malformed X-User-ID", zap.String("value", raw), zap.String("path", c.Path()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "X-User-ID must be a numeric user id",
			})
		}
		c.Locals(LocalUserID, id)
		return c.Next()
	}
}

// UserID returns the id stored by UserContextMiddleware.
func UserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(LocalUserID).(int64)
	return id
}

// AdminOnly lets through only the configured administrator. An adminID of 0
// disables admin routes entirely.
func AdminOnly(adminID int64, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := UserID(c)
		if adminID == 0 || caller != adminID {
			log.Warn("admin route refused", zap.Int64("caller", caller), zap.String("path", c.Path()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin access required",
			})
		}
		return c.Next()
	}
}
