package handlers

import (
	"strings"

	"mission-ledger/middleware"
	"mission-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AppConfig is the subset of configuration the HTTP surface needs.
type AppConfig struct {
	GatewayToken   string
	AdminID        int64
	AllowedOrigins string
}

// NewApp builds the fiber app: health check open, everything else behind
// the gateway token, admin routes behind the admin id.
func NewApp(cfg AppConfig, l *services.Ledger, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mission-ledger",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	if cfg.AllowedOrigins != "" {
		origins := strings.Split(cfg.AllowedOrigins, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(origins, ","),
			AllowMethods: "GET,POST,PUT,PATCH,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
			MaxAge:       86400,
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Only gateway requests past this point.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/", middleware.UserContextMiddleware(log))
	SetupLedgerRoutes(api, l)

	admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminID, log))
	SetupAdminRoutes(admin, l)

	return app
}
