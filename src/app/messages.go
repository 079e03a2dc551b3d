package app

import (
	"errors"
	"fmt"

	"github.com/theleywin/workkie/src/connections"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
)

// ProposalMessage is the single acknowledgment shown for a propose call.
func ProposalMessage(req models.ConnectionRequest, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Connection request sent to %s", req.ToUsername)
	case errors.Is(err, connections.ErrSelfRequest):
		return "You can't send a connection request to yourself"
	case errors.Is(err, connections.ErrAlreadyConnected):
		return "You are already connected with this user"
	case errors.Is(err, connections.ErrDuplicatePending):
		return "A connection request already exists"
	case errors.Is(err, models.ErrNotAuthenticated):
		return "Please log in first"
	case errors.Is(err, store.ErrNotFound):
		return "User not found"
	case errors.Is(err, store.ErrNotConnected):
		return "Can't reach the server, try again later"
	default:
		return "Failed to send connection request"
	}
}

// ResolutionMessage is the single acknowledgment shown for a resolve call.
func ResolutionMessage(decision models.Decision, req models.ConnectionRequest, err error) string {
	switch {
	case err == nil:
		switch decision {
		case models.DecisionAccept:
			return fmt.Sprintf("You are now connected with %s", req.FromUsername)
		case models.DecisionReject:
			return fmt.Sprintf("Rejected request from %s", req.FromUsername)
		default:
			return fmt.Sprintf("Ignored request from %s", req.FromUsername)
		}
	case errors.Is(err, connections.ErrPartialAccept):
		return "Could not complete the connection, please try again"
	case errors.Is(err, store.ErrNotFound):
		return "Connection request not found"
	case errors.Is(err, models.ErrNotAuthenticated):
		return "Please log in first"
	case errors.Is(err, connections.ErrWrongRecipient):
		return "Not authorized to resolve this request"
	case errors.Is(err, store.ErrNotConnected):
		return "Can't reach the server, try again later"
	default:
		return fmt.Sprintf("Failed to %s connection request", decision)
	}
}
