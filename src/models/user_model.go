package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	Id                 primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Username           string              `json:"username" bson:"username"`
	Password           string              `json:"-" bson:"password"`
	Avatar             string              `json:"avatar" bson:"avatar"`
	Email              string              `json:"email" bson:"email"`
	Latitude           *float64            `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude          *float64            `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Education          string              `json:"education" bson:"education"`
	Degree             string              `json:"degree" bson:"degree"`
	Connections        []Connection        `json:"connections" bson:"connections"`
	ConnectionRequests []ConnectionRequest `json:"connectionRequests" bson:"connectionRequests"`
	// Version is bumped by every write to the document, field-scoped or not.
	Version int64 `json:"version" bson:"_version"`
}

// UserDto is the public listing shape, without credentials or pending requests.
type UserDto struct {
	ID          primitive.ObjectID `json:"id"`
	Username    string             `json:"username"`
	Avatar      string             `json:"avatar"`
	Education   string             `json:"education"`
	Degree      string             `json:"degree"`
	Latitude    *float64           `json:"latitude,omitempty"`
	Longitude   *float64           `json:"longitude,omitempty"`
	Connections int                `json:"connections"`
}

// HasLocation reports whether the user carries a usable fix. A missing
// coordinate and the exact (0,0) point both mean "no known location".
func (u *User) HasLocation() bool {
	if u.Latitude == nil || u.Longitude == nil {
		return false
	}
	return ValidFix(*u.Latitude, *u.Longitude)
}

// ValidFix rejects the (0,0) placeholder devices report before a real fix.
func ValidFix(lat, lon float64) bool {
	return !(lat == 0 && lon == 0)
}

func (u *User) IsConnectedTo(username string) bool {
	for _, conn := range u.Connections {
		if conn.Username == username {
			return true
		}
	}
	return false
}

// PendingRequests returns the requests still waiting for a decision, in
// the order they were proposed.
func (u *User) PendingRequests() []ConnectionRequest {
	pending := make([]ConnectionRequest, 0, len(u.ConnectionRequests))
	for _, rq := range u.ConnectionRequests {
		if rq.Status == RequestStatusPending {
			pending = append(pending, rq)
		}
	}
	return pending
}

func (u *User) FindRequest(requestID primitive.ObjectID) (ConnectionRequest, bool) {
	for _, rq := range u.ConnectionRequests {
		if rq.Id == requestID {
			return rq, true
		}
	}
	return ConnectionRequest{}, false
}

func (u *User) Dto() UserDto {
	return UserDto{
		ID:          u.Id,
		Username:    u.Username,
		Avatar:      u.Avatar,
		Education:   u.Education,
		Degree:      u.Degree,
		Latitude:    u.Latitude,
		Longitude:   u.Longitude,
		Connections: len(u.Connections),
	}
}
