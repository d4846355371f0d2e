package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"mailminer/adapter/in/http"
	"mailminer/config"
	"mailminer/infra/middleware"
)

// NewAPI assembles the fiber app on top of an already built
// dependency graph.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: !cfg.IsDevelopment(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,

		// go-json, faster than encoding/json for our payload shapes
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(recover.New())
	app.Use(middleware.RequestID())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	// Health check (no auth required)
	http.NewHealthHandler(deps.DB).Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.BearerAuth(cfg.API.Token))

	http.NewActionItemHandler(deps.Items).Register(api)
	http.NewEmailHandler(deps.Emails).Register(api)
	http.NewRunHandler(deps.Orchestrator, deps.Reports).Register(api)

	return app
}
