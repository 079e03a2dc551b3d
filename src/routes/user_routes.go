package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/controllers"
)

func AuthRoutes(router fiber.Router, a *app.App, protect fiber.Handler) {
	ac := controllers.NewAuthController(a)
	auth := router.Group("/auth")
	auth.Post("/signup", ac.Signup)
	auth.Post("/login", ac.Login)
	auth.Get("/me", protect, ac.GetCurrentUser)
}

func UserRoutes(router fiber.Router, a *app.App, protect fiber.Handler) {
	uc := controllers.NewUserController(a)
	user := router.Group("/users", protect)
	user.Get("/", uc.GetUsers)
	user.Put("/me", uc.UpdateProfile)
	user.Delete("/me", uc.DeleteAccount)
	user.Get("/:userId", uc.GetUserByID)

	lc := controllers.NewLocationController(a)
	router.Put("/location", protect, lc.UpdateLocation)
}
