package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/location"
)

type LocationController struct {
	app *app.App
}

func NewLocationController(a *app.App) *LocationController {
	return &LocationController{app: a}
}

// UpdateLocation stores the caller's device fix. A (0,0) fix is refused and
// the stored coordinates stay as they were.
func (lc *LocationController) UpdateLocation(c *fiber.Ctx) error {
	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if body.Latitude == nil || body.Longitude == nil {
		return fail(c, location.ErrNoLocation, "Latitude and longitude are required")
	}

	err := lc.app.SyncCoordinates(c.Context(), identityOf(c), *body.Latitude, *body.Longitude)
	if err != nil {
		if errors.Is(err, location.ErrNoLocation) {
			return fail(c, err, "No usable location, coordinates unchanged")
		}
		return fail(c, err, "Failed to update location")
	}
	return c.JSON(lib.MessageResponse("Location updated"))
}
