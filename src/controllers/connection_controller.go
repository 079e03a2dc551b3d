package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/theleywin/workkie/src/app"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/models"
)

type ConnectionController struct {
	app *app.App
}

func NewConnectionController(a *app.App) *ConnectionController {
	return &ConnectionController{app: a}
}

// SendConnectionRequest sends a connection request from the authenticated user to another user
func (cc *ConnectionController) SendConnectionRequest(c *fiber.Ctx) error {
	targetID, ok := objectIDParam(c, "userId")
	if !ok {
		return badRequest(c, "Invalid user ID format")
	}

	req, err := cc.app.Propose(c.Context(), identityOf(c), targetID)
	message := app.ProposalMessage(req, err)
	if err != nil {
		return fail(c, err, message)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"request": req,
	})
}

func (cc *ConnectionController) AcceptConnectionRequest(c *fiber.Ctx) error {
	return cc.resolve(c, models.DecisionAccept)
}

func (cc *ConnectionController) RejectConnectionRequest(c *fiber.Ctx) error {
	return cc.resolve(c, models.DecisionReject)
}

func (cc *ConnectionController) IgnoreConnectionRequest(c *fiber.Ctx) error {
	return cc.resolve(c, models.DecisionIgnore)
}

func (cc *ConnectionController) resolve(c *fiber.Ctx, decision models.Decision) error {
	requestID, ok := objectIDParam(c, "requestId")
	if !ok {
		return badRequest(c, "Invalid request ID format")
	}

	res, err := cc.app.Resolve(c.Context(), identityOf(c), requestID, decision)
	message := app.ResolutionMessage(decision, res.Request, err)
	if err != nil {
		return fail(c, err, message)
	}
	return c.JSON(lib.MessageResponse(message))
}

// GetConnectionRequests lists the caller's pending requests, oldest first
func (cc *ConnectionController) GetConnectionRequests(c *fiber.Ctx) error {
	pending, err := cc.app.ListPending(c.Context(), identityOf(c))
	if err != nil {
		return fail(c, err, "Error fetching connection requests")
	}
	return c.JSON(pending)
}

func (cc *ConnectionController) GetUserConnections(c *fiber.Ctx) error {
	conns, err := cc.app.Connections(c.Context(), identityOf(c))
	if err != nil {
		return fail(c, err, "Error fetching connections")
	}
	return c.JSON(conns)
}

// GetConnectionStatus reports connected, pending, received or not_connected
func (cc *ConnectionController) GetConnectionStatus(c *fiber.Ctx) error {
	otherID, ok := objectIDParam(c, "userId")
	if !ok {
		return badRequest(c, "Invalid user ID format")
	}
	state, err := cc.app.ConnectionStatus(c.Context(), identityOf(c), otherID)
	if err != nil {
		return fail(c, err, "Error checking connection status")
	}
	return c.JSON(fiber.Map{"status": state})
}
