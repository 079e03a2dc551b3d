package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/connections"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/location"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/session"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const identityKey = "identity"

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, connections.ErrPartialAccept):
		return fiber.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicateKey),
		errors.Is(err, connections.ErrDuplicatePending),
		errors.Is(err, connections.ErrAlreadyConnected),
		errors.Is(err, session.ErrUsernameTaken):
		return fiber.StatusConflict
	case errors.Is(err, connections.ErrSelfRequest),
		errors.Is(err, session.ErrInvalidSignup),
		errors.Is(err, location.ErrNoLocation):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotAuthenticated),
		errors.Is(err, session.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, connections.ErrWrongRecipient):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrNotConnected):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes the single message response for err.
func fail(c *fiber.Ctx, err error, message string) error {
	status := StatusFor(err)
	if status == fiber.StatusInternalServerError {
		glog.Errorf("[http] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(lib.MessageResponse(message))
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(lib.MessageResponse(message))
}

// identityOf returns the identity ProtectRoute attached to the request.
func identityOf(c *fiber.Ctx) models.Identity {
	identity, _ := c.Locals(identityKey).(models.Identity)
	return identity
}

func SetIdentity(c *fiber.Ctx, identity models.Identity) {
	c.Locals(identityKey, identity)
}

func objectIDParam(c *fiber.Ctx, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Params(name))
	return id, err == nil
}
