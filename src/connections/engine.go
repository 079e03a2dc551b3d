// Package connections implements the connection request lifecycle:
// a request is proposed onto the target's document and resolved by the
// target into a mutual connection, a rejection, or an ignore.
package connections

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/repository"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultAcceptRetries = 3
	DefaultRetryBackoff  = 200 * time.Millisecond

	compensateTimeout = 10 * time.Second
)

// Resolution is the outcome of a successful Resolve. Suppress tells the
// caller not to surface the request again for the rest of the session.
type Resolution struct {
	Decision models.Decision
	Request  models.ConnectionRequest
	Suppress bool
}

type Engine struct {
	users   *repository.UserRepository
	retries int
	backoff time.Duration
	now     func() time.Time
}

// NewEngine returns an engine that retries the requester side of an accept
// up to retries times, waiting backoff, 2*backoff, ... between attempts.
func NewEngine(users *repository.UserRepository, retries int, backoff time.Duration) *Engine {
	if retries < 0 {
		retries = 0
	}
	return &Engine{
		users:   users,
		retries: retries,
		backoff: backoff,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Propose appends a pending request from the caller to the target user.
func (e *Engine) Propose(ctx context.Context, identity models.Identity, to primitive.ObjectID) (models.ConnectionRequest, error) {
	if identity.UserID == to {
		return models.ConnectionRequest{}, ErrSelfRequest
	}
	if !identity.Valid() {
		return models.ConnectionRequest{}, ErrNotAuthenticated
	}

	target, err := e.users.GetByID(ctx, to)
	if err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("load target: %w", err)
	}
	requester, err := e.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("load requester: %w", err)
	}
	if requester.IsConnectedTo(target.Username) {
		return models.ConnectionRequest{}, ErrAlreadyConnected
	}

	req := models.ConnectionRequest{
		Id:           primitive.NewObjectID(),
		FromUser:     requester.Id,
		ToUser:       target.Id,
		FromUsername: requester.Username,
		ToUsername:   target.Username,
		Status:       models.RequestStatusPending,
		Date:         e.now(),
	}
	pushed, err := e.users.PushRequestIfAbsent(ctx, req)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if !pushed {
		return models.ConnectionRequest{}, ErrDuplicatePending
	}
	glog.V(1).Infof("[connections] %s proposed to %s (%s)", req.FromUsername, req.ToUsername, req.Id.Hex())
	return req, nil
}

// ListPending returns the user's pending requests, oldest first.
func (e *Engine) ListPending(ctx context.Context, userID primitive.ObjectID) ([]models.ConnectionRequest, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending := user.PendingRequests()
	slices.SortStableFunc(pending, func(a, b models.ConnectionRequest) int {
		return a.Date.Compare(b.Date)
	})
	return pending, nil
}

// Resolve applies the caller's decision to one of their pending requests.
// A request that was already resolved yields store.ErrNotFound.
func (e *Engine) Resolve(ctx context.Context, identity models.Identity, requestID primitive.ObjectID, decision models.Decision) (Resolution, error) {
	if !identity.Valid() {
		return Resolution{}, ErrNotAuthenticated
	}
	target, err := e.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return Resolution{}, err
	}
	req, ok := target.FindRequest(requestID)
	if !ok {
		return Resolution{}, fmt.Errorf("request %s: %w", requestID.Hex(), store.ErrNotFound)
	}
	if req.ToUser != identity.UserID {
		return Resolution{}, ErrWrongRecipient
	}

	switch decision {
	case models.DecisionAccept:
		if err := e.accept(ctx, target, req); err != nil {
			return Resolution{}, err
		}
	case models.DecisionReject, models.DecisionIgnore:
		if err := e.users.PullRequest(ctx, target.Id, req.Id); err != nil {
			return Resolution{}, err
		}
	default:
		return Resolution{}, fmt.Errorf("resolve %s: unknown %s", requestID.Hex(), decision)
	}

	glog.V(1).Infof("[connections] %s %s request from %s (%s)", target.Username, decision, req.FromUsername, req.Id.Hex())
	return Resolution{
		Decision: decision,
		Request:  req,
		Suppress: decision == models.DecisionIgnore,
	}, nil
}

// accept claims the request on the target's document, then connects the
// requester. If the requester side cannot be written after retries the
// target side is rolled back.
func (e *Engine) accept(ctx context.Context, target *models.User, req models.ConnectionRequest) error {
	requester, err := e.users.GetByID(ctx, req.FromUser)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// the requester is gone, drop the dangling request
			if pullErr := e.users.PullRequest(ctx, target.Id, req.Id); pullErr != nil {
				glog.Warningf("[connections] drop dangling request %s: %v", req.Id.Hex(), pullErr)
			}
		}
		return fmt.Errorf("load requester: %w", err)
	}

	wasConnected := target.IsConnectedTo(requester.Username)
	if err := e.users.ClaimRequestAndConnect(ctx, target.Id, req.Id, requester.Username); err != nil {
		return err
	}

	err = e.connectRequester(ctx, requester.Id, target.Username)
	if err == nil {
		return nil
	}

	glog.Errorf("[connections] accept %s: requester %s not connected: %v", req.Id.Hex(), requester.Username, err)
	partial := &PartialAcceptError{
		RequestID: req.Id,
		Requester: requester.Username,
		Target:    target.Username,
		Err:       err,
	}
	partial.Compensated = e.compensate(ctx, target.Id, req, requester.Username, wasConnected)
	return partial
}

func (e *Engine) connectRequester(ctx context.Context, requesterID primitive.ObjectID, targetName string) error {
	var err error
	for attempt := 0; ; attempt += 1 {
		err = e.users.AddConnection(ctx, requesterID, targetName)
		if err == nil || errors.Is(err, store.ErrNotFound) || attempt >= e.retries {
			return err
		}
		glog.Warningf("[connections] connect %s -> %s attempt %d: %v", requesterID.Hex(), targetName, attempt+1, err)

		wait := time.NewTimer(e.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			wait.Stop()
			return errors.Join(err, ctx.Err())
		case <-wait.C:
		}
	}
}

// compensate restores the request on the target and removes the connection
// this call added. It runs even if ctx is already cancelled.
func (e *Engine) compensate(ctx context.Context, targetID primitive.ObjectID, req models.ConnectionRequest, requesterName string, wasConnected bool) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	ok := true
	if err := e.users.RestoreRequest(ctx, req); err != nil {
		glog.Errorf("[connections] restore request %s: %v", req.Id.Hex(), err)
		ok = false
	}
	if !wasConnected {
		if err := e.users.RemoveConnection(ctx, targetID, requesterName); err != nil {
			glog.Errorf("[connections] remove connection %s from %s: %v", requesterName, targetID.Hex(), err)
			ok = false
		}
	}
	return ok
}

// Connections lists the user's established connections.
func (e *Engine) Connections(ctx context.Context, userID primitive.ObjectID) ([]models.Connection, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Connections == nil {
		return []models.Connection{}, nil
	}
	return user.Connections, nil
}

// Status reports how the caller relates to another user.
func (e *Engine) Status(ctx context.Context, identity models.Identity, other primitive.ObjectID) (models.ConnectionState, error) {
	if !identity.Valid() {
		return "", ErrNotAuthenticated
	}
	me, err := e.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return "", err
	}
	them, err := e.users.GetByID(ctx, other)
	if err != nil {
		return "", err
	}

	if me.IsConnectedTo(them.Username) {
		return models.ConnectionStateConnected, nil
	}
	for _, rq := range them.PendingRequests() {
		if rq.FromUser == me.Id {
			return models.ConnectionStatePending, nil
		}
	}
	for _, rq := range me.PendingRequests() {
		if rq.FromUser == them.Id {
			return models.ConnectionStateReceived, nil
		}
	}
	return models.ConnectionStateNotConnected, nil
}
