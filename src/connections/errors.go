package connections

import (
	"errors"
	"fmt"

	"github.com/theleywin/workkie/src/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrSelfRequest      = errors.New("cannot send a connection request to yourself")
	ErrAlreadyConnected = errors.New("already connected")
	ErrDuplicatePending = errors.New("a pending request already exists")
	ErrNotAuthenticated = models.ErrNotAuthenticated
	ErrPartialAccept    = errors.New("partial accept")
	ErrWrongRecipient   = errors.New("request is addressed to another user")
)

// PartialAcceptError reports an accept whose requester side could not be
// written. Compensated is true when the target side was rolled back and the
// request is pending again, so the accept can be retried in full.
type PartialAcceptError struct {
	RequestID   primitive.ObjectID
	Requester   string
	Target      string
	Compensated bool
	Err         error
}

func (e *PartialAcceptError) Error() string {
	state := "rolled back"
	if !e.Compensated {
		state = "rollback failed"
	}
	return fmt.Sprintf("accept %s (%s -> %s): requester side not written, %s: %v",
		e.RequestID.Hex(), e.Requester, e.Target, state, e.Err)
}

func (e *PartialAcceptError) Is(target error) bool {
	return target == ErrPartialAccept
}

func (e *PartialAcceptError) Unwrap() error {
	return e.Err
}
