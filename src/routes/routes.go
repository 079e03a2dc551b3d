package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/middleware"
)

// NewServer builds the fiber app with every route mounted under /api/v1.
func NewServer(a *app.App) *fiber.App {
	server := fiber.New()
	server.Use(cors.New())

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(lib.MessageResponse("ok"))
	})

	protect := middleware.ProtectRoute(a.Config().JWTSecret)
	api := server.Group("/api/v1")
	AuthRoutes(api, a, protect)
	UserRoutes(api, a, protect)
	ConnectionRoutes(api, a, protect)
	PostRoutes(api, a, protect)

	return server
}
