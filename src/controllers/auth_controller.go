package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/session"
)

type AuthController struct {
	app *app.App
}

func NewAuthController(a *app.App) *AuthController {
	return &AuthController{app: a}
}

// Signup registers a user and returns a token for them
func (ac *AuthController) Signup(c *fiber.Ctx) error {
	var in session.SignupInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := ac.app.Signup(c.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidSignup):
			return fail(c, err, err.Error())
		case errors.Is(err, session.ErrUsernameTaken):
			return fail(c, err, "Username already exists")
		default:
			return fail(c, err, "Failed to create user")
		}
	}

	token, err := lib.GenerateJWT(ac.app.Config().JWTSecret, models.Identity{UserID: user.Id, Username: user.Username})
	if err != nil {
		return fail(c, err, "Failed to generate token")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"token":   token,
	})
}

// Login checks username and password and returns a token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return badRequest(c, "Username and password are required")
	}

	identity, err := ac.app.Authenticate(c.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return fail(c, err, "Invalid credentials")
		}
		return fail(c, err, "Server error")
	}

	token, err := lib.GenerateJWT(ac.app.Config().JWTSecret, identity)
	if err != nil {
		return fail(c, err, "Failed to generate token")
	}
	return c.JSON(fiber.Map{
		"message": "Logged in successfully",
		"token":   token,
	})
}

// GetCurrentUser returns the authenticated user's record
func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user, err := ac.app.GetUser(c.Context(), identityOf(c).UserID)
	if err != nil {
		return fail(c, err, "User not found")
	}
	return c.JSON(user)
}
