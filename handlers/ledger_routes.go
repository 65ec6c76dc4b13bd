// handlers/ledger_routes.go
package handlers

import (
	"strconv"

	"mission-ledger/middleware"
	"mission-ledger/models"
	"mission-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLedgerRoutes registers the operations the bot calls on behalf of users.
func SetupLedgerRoutes(router fiber.Router, l *services.Ledger) {
	router.Post("/users", func(c *fiber.Ctx) error {
		var req struct {
			ExternalUserID int64  `json:"external_user_id"`
			DisplayName    string `json:"display_name"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		if req.ExternalUserID == 0 {
			req.ExternalUserID = middleware.UserID(c)
		}

		user, created, err := l.Users.RegisterUserIfAbsent(c.UserContext(), req.ExternalUserID, req.DisplayName)
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"user": user, "created": created})
	})

	router.Get("/users/:external_id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("external_id"), 10, 64)
		if err != nil {
			return badRequest(c, "invalid user id")
		}
		user, err := l.Users.GetProfile(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(user)
	})

	router.Get("/users/:external_id/redemptions", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("external_id"), 10, 64)
		if err != nil || id == 0 {
			return badRequest(c, "invalid user id")
		}
		list, err := l.Rewards.ListRedemptions(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	router.Get("/missions", func(c *fiber.Ctx) error {
		missions, err := l.Missions.ListActiveMissions(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(nonNil(missions))
	})

	router.Get("/rewards", func(c *fiber.Ctx) error {
		rewards, err := l.Rewards.ListAvailableRewards(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(nonNil(rewards))
	})

	router.Get("/rewards/:id", func(c *fiber.Ctx) error {
		id, err := parseUint(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid reward id")
		}
		reward, err := l.Rewards.GetReward(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(reward)
	})

	router.Post("/rewards/:id/redeem", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID",
			})
		}
		id, err := parseUint(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid reward id")
		}
		res, err := l.Rewards.Redeem(c.UserContext(), userID, id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	router.Get("/ranking", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", services.DefaultRankingLimit)
		entries, err := l.Users.TopRanking(c.UserContext(), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(entries)
	})

	router.Post("/events", func(c *fiber.Ctx) error {
		var ev models.Event
		if err := c.BodyParser(&ev); err != nil {
			return badRequest(c, "invalid event body")
		}
		if ev.ExternalUserID == 0 {
			ev.ExternalUserID = middleware.UserID(c)
		}
		out, err := l.Dispatcher.Dispatch(c.UserContext(), ev)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(out)
	})
}

func parseUint(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
