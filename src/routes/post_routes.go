package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/controllers"
)

func PostRoutes(router fiber.Router, a *app.App, protect fiber.Handler) {
	pc := controllers.NewPostController(a)
	post := router.Group("/posts", protect)
	post.Get("/", pc.GetPosts)
	post.Post("/", pc.CreatePost)
	post.Get("/:postId", pc.GetPostByID)
	post.Delete("/:postId", pc.DeletePost)
	post.Get("/:postId/comments", pc.GetComments)
	post.Post("/:postId/comments", pc.CreateComment)
}
