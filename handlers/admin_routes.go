// handlers/admin_routes.go
package handlers

import (
	"strconv"

	"mission-ledger/models"
	"mission-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminRoutes registers the administrator operations. The caller is
// expected to have mounted AdminOnly on router.
func SetupAdminRoutes(router fiber.Router, l *services.Ledger) {
	router.Post("/season/reset", func(c *fiber.Ctx) error {
		var req struct {
			Label string `json:"label"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		report, err := l.Seasons.ResetSeason(c.UserContext(), req.Label)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	})

	router.Post("/missions", func(c *fiber.Ctx) error {
		var in services.MissionInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		m, err := l.Missions.CreateMission(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	router.Patch("/missions/:id", func(c *fiber.Ctx) error {
		id, err := parseUint(c.Params("id"))
		if err != nil {
			return badRequest(c, "invalid mission id")
		}
		var req struct {
			Active *bool   `json:"active"`
			PostID *int64  `json:"post_id"`
			PollID *string `json:"poll_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Active == nil && req.PostID == nil && req.PollID == nil {
			return badRequest(c, "nothing to update")
		}

		ctx := c.UserContext()
		var m *models.Mission
		if req.PostID != nil {
			if m, err = l.Missions.AttachMissionPost(ctx, id, *req.PostID); err != nil {
				return respondError(c, err)
			}
		}
		if req.PollID != nil {
			if m, err = l.Missions.AttachMissionPoll(ctx, id, *req.PollID); err != nil {
				return respondError(c, err)
			}
		}
		if req.Active != nil {
			if m, err = l.Missions.SetMissionActive(ctx, id, *req.Active); err != nil {
				return respondError(c, err)
			}
		}
		return c.JSON(m)
	})

	router.Put("/rewards", func(c *fiber.Ctx) error {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Cost        int64  `json:"cost"`
			Stock       int64  `json:"stock"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		reward, created, err := l.Rewards.CreateReward(c.UserContext(), req.Name, req.Description, req.Cost, req.Stock)
		if err != nil {
			return respondError(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"reward": reward, "created": created})
	})

	router.Get("/export", func(c *fiber.Ctx) error {
		users, err := l.Users.ExportAllUsers(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(nonNil(users))
	})

	router.Get("/redemptions", func(c *fiber.Ctx) error {
		var userID int64
		if raw := c.Query("external_user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return badRequest(c, "invalid external_user_id")
			}
			userID = id
		}
		list, err := l.Rewards.ListRedemptions(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(nonNil(list))
	})

	router.Get("/redemptions/stream", func(c *fiber.Ctx) error {
		return streamRedemptions(c, l)
	})

	users := router.Group("/users/:external_id")

	users.Post("/points", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("external_id"), 10, 64)
		if err != nil {
			return badRequest(c, "invalid user id")
		}
		var req struct {
			Delta int64 `json:"delta"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := l.Progression.AwardPoints(c.UserContext(), id, req.Delta)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	users.Post("/achievements", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("external_id"), 10, 64)
		if err != nil {
			return badRequest(c, "invalid user id")
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		granted, err := l.Badges.GrantAchievement(c.UserContext(), id, req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"granted": granted})
	})

	// One-off completions keyed by an action name, e.g. a daily check-in.
	users.Post("/completions", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("external_id"), 10, 64)
		if err != nil {
			return badRequest(c, "invalid user id")
		}
		var req struct {
			Key          string   `json:"key"`
			Points       int64    `json:"points"`
			Achievements []string `json:"achievements"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		token, err := models.KeyToken(req.Key)
		if err != nil {
			return respondError(c, err)
		}
		res, err := l.Dispatcher.Complete(c.UserContext(), id, token, req.Points, req.Achievements...)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})
}
