package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Connection is one side of a mutual connection, naming the peer.
type Connection struct {
	Username string `json:"username" bson:"username"`
}

type ConnectionRequest struct {
	Id           primitive.ObjectID `json:"id" bson:"_id"`
	FromUser     primitive.ObjectID `json:"fromUser" bson:"fromUser"`
	ToUser       primitive.ObjectID `json:"toUser" bson:"toUser"`
	FromUsername string             `json:"fromUsername" bson:"fromUsername"`
	ToUsername   string             `json:"toUsername" bson:"toUsername"`
	Status       RequestStatus      `json:"status" bson:"status"`
	Date         time.Time          `json:"date" bson:"date"`
}

// RequestStatus is the persisted state of a request. Resolved requests are
// removed from the target's document, so pending is the only stored value.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "pending"
)

type Decision int

const (
	DecisionAccept Decision = iota
	DecisionReject
	DecisionIgnore
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

func ParseDecision(s string) (Decision, error) {
	switch s {
	case "accept", "yes":
		return DecisionAccept, nil
	case "reject", "no":
		return DecisionReject, nil
	case "ignore":
		return DecisionIgnore, nil
	}
	return 0, fmt.Errorf("unknown decision %q", s)
}

// ConnectionState describes how the caller relates to another user.
type ConnectionState string

const (
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStatePending      ConnectionState = "pending"
	ConnectionStateReceived     ConnectionState = "received"
	ConnectionStateNotConnected ConnectionState = "not_connected"
)
