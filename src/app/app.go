// Package app is the headless entry point used by the HTTP server, the CLI
// and tests. It wires the store, repositories, connection engine and
// background tasks together.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/connections"
	"github.com/theleywin/workkie/src/lib"
	"github.com/theleywin/workkie/src/location"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/poller"
	"github.com/theleywin/workkie/src/repository"
	"github.com/theleywin/workkie/src/session"
	"github.com/theleywin/workkie/src/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type App struct {
	cfg    *lib.Config
	store  store.Store
	users  *repository.UserRepository
	posts  *repository.PostRepository
	auth   *session.Authenticator
	engine *connections.Engine
	syncer *location.Syncer
	poller *poller.Poller
}

// Option adjusts an App at construction.
type Option func(*options)

type options struct {
	bcryptCost int
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		o.bcryptCost = cost
	}
}

func New(cfg *lib.Config, s store.Store, opts ...Option) *App {
	o := options{bcryptCost: session.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	users := repository.NewUserRepository(s)
	engine := connections.NewEngine(users, cfg.AcceptRetries, connections.DefaultRetryBackoff)
	return &App{
		cfg:    cfg,
		store:  s,
		users:  users,
		posts:  repository.NewPostRepository(s),
		auth:   session.NewAuthenticator(users, o.bcryptCost),
		engine: engine,
		syncer: location.NewSyncer(users),
		poller: poller.New(engine, cfg.GetPollInterval(), cfg.GetStoreTimeout()),
	}
}

// Init prepares the store. It is safe to call on every start.
func (a *App) Init(ctx context.Context) error {
	if err := a.users.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	glog.V(1).Infof("[app] indexes ready")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}

func (a *App) Config() *lib.Config {
	return a.cfg
}

func (a *App) Posts() *repository.PostRepository {
	return a.posts
}

func (a *App) Authenticate(ctx context.Context, username, password string) (models.Identity, error) {
	return a.auth.Authenticate(ctx, username, password)
}

func (a *App) Signup(ctx context.Context, in session.SignupInput) (*models.User, error) {
	return a.auth.Signup(ctx, in)
}

func (a *App) ListUsers(ctx context.Context) ([]models.User, error) {
	return a.users.GetAll(ctx)
}

func (a *App) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return a.users.GetByID(ctx, id)
}

func (a *App) FindUser(ctx context.Context, username string) (*models.User, error) {
	return a.users.GetByUsername(ctx, username)
}

// ProfileUpdate holds profile fields to change. Empty fields are left as
// they are.
type ProfileUpdate struct {
	Avatar    string `json:"avatar"`
	Email     string `json:"email"`
	Education string `json:"education"`
	Degree    string `json:"degree"`
	// Version is the version the caller last read. Zero means "whatever is
	// current now".
	Version int64 `json:"version"`
}

// UpdateProfile replaces the caller's record. If the record changed since
// the version the caller read, it fails with store.ErrConflict.
func (a *App) UpdateProfile(ctx context.Context, identity models.Identity, update ProfileUpdate) (*models.User, error) {
	if !identity.Valid() {
		return nil, models.ErrNotAuthenticated
	}
	user, err := a.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if update.Version != 0 && update.Version != user.Version {
		return nil, fmt.Errorf("update profile at version %d, stored %d: %w", update.Version, user.Version, store.ErrConflict)
	}
	if update.Avatar != "" {
		user.Avatar = update.Avatar
	}
	if update.Email != "" {
		user.Email = update.Email
	}
	if update.Education != "" {
		user.Education = update.Education
	}
	if update.Degree != "" {
		user.Degree = update.Degree
	}
	if err := a.users.Replace(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the caller's record and then drops the caller from
// every peer's connections, so a later account with the same username
// starts unconnected.
func (a *App) DeleteAccount(ctx context.Context, identity models.Identity) error {
	if !identity.Valid() {
		return models.ErrNotAuthenticated
	}
	user, err := a.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if err := a.users.Delete(ctx, user.Id); err != nil {
		return err
	}
	n, err := a.users.DetachPeer(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("detach %s from peers: %w", user.Username, err)
	}
	glog.V(1).Infof("[app] deleted %s, detached from %d peers", user.Username, n)
	return nil
}

func (a *App) Propose(ctx context.Context, identity models.Identity, to primitive.ObjectID) (models.ConnectionRequest, error) {
	return a.engine.Propose(ctx, identity, to)
}

func (a *App) Resolve(ctx context.Context, identity models.Identity, requestID primitive.ObjectID, decision models.Decision) (connections.Resolution, error) {
	return a.engine.Resolve(ctx, identity, requestID, decision)
}

func (a *App) ListPending(ctx context.Context, identity models.Identity) ([]models.ConnectionRequest, error) {
	if !identity.Valid() {
		return nil, models.ErrNotAuthenticated
	}
	return a.engine.ListPending(ctx, identity.UserID)
}

func (a *App) Connections(ctx context.Context, identity models.Identity) ([]models.Connection, error) {
	if !identity.Valid() {
		return nil, models.ErrNotAuthenticated
	}
	return a.engine.Connections(ctx, identity.UserID)
}

func (a *App) ConnectionStatus(ctx context.Context, identity models.Identity, other primitive.ObjectID) (models.ConnectionState, error) {
	return a.engine.Status(ctx, identity, other)
}

// SyncCoordinates stores the caller's device fix. A missing or (0,0) fix
// returns location.ErrNoLocation and changes nothing.
func (a *App) SyncCoordinates(ctx context.Context, identity models.Identity, lat, lon float64) error {
	err := a.syncer.Sync(ctx, identity, lat, lon)
	if err != nil && !errors.Is(err, location.ErrNoLocation) {
		glog.Warningf("[app] sync coordinates for %s: %v", identity.Username, err)
	}
	return err
}

// StartPolling surfaces identity's pending requests to decide until the
// handle is stopped.
func (a *App) StartPolling(ctx context.Context, identity models.Identity, decide poller.DecisionFunc, notify poller.NotifyFunc) *poller.Handle {
	return a.poller.Start(ctx, identity, decide, notify)
}

func (a *App) StopPolling(h *poller.Handle) {
	if h != nil {
		h.Stop()
	}
}

// StartCoordinateTask syncs the fix from source on the configured interval.
// Call Foreground on the returned task whenever the app is foregrounded.
func (a *App) StartCoordinateTask(ctx context.Context, identity models.Identity, source location.Source) *location.Task {
	task := location.NewTask(a.syncer, identity, source, a.cfg.GetCoordinateInterval(), a.cfg.GetStoreTimeout())
	task.Start(ctx)
	task.Foreground()
	return task
}
