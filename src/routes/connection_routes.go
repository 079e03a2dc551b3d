package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/controllers"
)

// ConnectionRoutes sets up the routes for sending, resolving and listing connection requests and for checking connection status
func ConnectionRoutes(router fiber.Router, a *app.App, protect fiber.Handler) {
	cc := controllers.NewConnectionController(a)
	connection := router.Group("/connections", protect)

	connection.Post("/request/:userId", cc.SendConnectionRequest)
	connection.Put("/accept/:requestId", cc.AcceptConnectionRequest)
	connection.Put("/reject/:requestId", cc.RejectConnectionRequest)
	connection.Put("/ignore/:requestId", cc.IgnoreConnectionRequest)
	connection.Get("/requests", cc.GetConnectionRequests)
	connection.Get("/", cc.GetUserConnections)
	connection.Get("/status/:userId", cc.GetConnectionStatus)
}
