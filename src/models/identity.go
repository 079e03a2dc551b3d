package models

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identity is a verified caller, obtained at login and passed explicitly
// into every engine and repository call that acts on behalf of a user.
type Identity struct {
	UserID   primitive.ObjectID `json:"userId"`
	Username string             `json:"username"`
}

func (i Identity) Valid() bool {
	return !i.UserID.IsZero() && i.Username != ""
}

// ErrNotAuthenticated is returned for calls made without a verified identity.
var ErrNotAuthenticated = errors.New("not authenticated")
