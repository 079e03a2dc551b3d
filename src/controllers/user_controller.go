package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
)

type UserController struct {
	app *app.App
}

func NewUserController(a *app.App) *UserController {
	return &UserController{app: a}
}

// GetUsers lists every user in public form
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	users, err := uc.app.ListUsers(c.Context())
	if err != nil {
		return fail(c, err, "Error fetching users")
	}
	dtos := make([]models.UserDto, 0, len(users))
	for i := range users {
		dtos = append(dtos, users[i].Dto())
	}
	return c.JSON(fiber.Map{"data": dtos})
}

func (uc *UserController) GetUserByID(c *fiber.Ctx) error {
	id, ok := objectIDParam(c, "userId")
	if !ok {
		return badRequest(c, "Invalid user ID format")
	}
	user, err := uc.app.GetUser(c.Context(), id)
	if err != nil {
		return fail(c, err, "User not found")
	}
	return c.JSON(user.Dto())
}

// UpdateProfile replaces the caller's profile; a stale version gets 409
func (uc *UserController) UpdateProfile(c *fiber.Ctx) error {
	var update app.ProfileUpdate
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, "Invalid request body")
	}
	user, err := uc.app.UpdateProfile(c.Context(), identityOf(c), update)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fail(c, err, "Profile changed since it was read, reload and try again")
		}
		return fail(c, err, "Failed to update profile")
	}
	return c.JSON(user)
}

func (uc *UserController) DeleteAccount(c *fiber.Ctx) error {
	if err := uc.app.DeleteAccount(c.Context(), identityOf(c)); err != nil {
		return fail(c, err, "Failed to delete account")
	}
	return c.JSON(lib.MessageResponse("Account deleted"))
}
