package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/models"
)

type PostController struct {
	app *app.App
}

func NewPostController(a *app.App) *PostController {
	return &PostController{app: a}
}

func (pc *PostController) GetPosts(c *fiber.Ctx) error {
	posts, err := pc.app.Posts().GetAll(c.Context())
	if err != nil {
		return fail(c, err, "Error fetching posts")
	}
	return c.JSON(posts)
}

// CreatePost publishes a post authored by the caller
func (pc *PostController) CreatePost(c *fiber.Ctx) error {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(body.Content) == "" {
		return badRequest(c, "Content is required")
	}

	post := &models.Post{
		Author:  identityOf(c).Username,
		Title:   body.Title,
		Content: body.Content,
	}
	if err := pc.app.Posts().Create(c.Context(), post); err != nil {
		return fail(c, err, "Failed to create post")
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (pc *PostController) GetPostByID(c *fiber.Ctx) error {
	postID, ok := objectIDParam(c, "postId")
	if !ok {
		return badRequest(c, "Invalid post ID format")
	}
	post, err := pc.app.Posts().GetByID(c.Context(), postID)
	if err != nil {
		return fail(c, err, "Post not found")
	}
	return c.JSON(post)
}

// DeletePost removes a post; only its author may do so
func (pc *PostController) DeletePost(c *fiber.Ctx) error {
	postID, ok := objectIDParam(c, "postId")
	if !ok {
		return badRequest(c, "Invalid post ID format")
	}
	post, err := pc.app.Posts().GetByID(c.Context(), postID)
	if err != nil {
		return fail(c, err, "Post not found")
	}
	if post.Author != identityOf(c).Username {
		return c.Status(fiber.StatusForbidden).JSON(lib.MessageResponse("You are not authorized to delete this post"))
	}
	if err := pc.app.Posts().Delete(c.Context(), postID); err != nil {
		return fail(c, err, "Failed to delete post")
	}
	return c.JSON(lib.MessageResponse("Post deleted successfully"))
}

func (pc *PostController) GetComments(c *fiber.Ctx) error {
	postID, ok := objectIDParam(c, "postId")
	if !ok {
		return badRequest(c, "Invalid post ID format")
	}
	comments, err := pc.app.Posts().GetComments(c.Context(), postID)
	if err != nil {
		return fail(c, err, "Post not found")
	}
	return c.JSON(comments)
}

// CreateComment appends "<username>: <content>" to the post
func (pc *PostController) CreateComment(c *fiber.Ctx) error {
	postID, ok := objectIDParam(c, "postId")
	if !ok {
		return badRequest(c, "Invalid post ID format")
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(body.Content) == "" {
		return badRequest(c, "Content is required")
	}

	if err := pc.app.Posts().AddComment(c.Context(), postID, identityOf(c).Username, body.Content); err != nil {
		return fail(c, err, "Failed to add comment")
	}
	return c.Status(fiber.StatusCreated).JSON(lib.MessageResponse("Comment added"))
}
