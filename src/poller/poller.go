// Package poller periodically surfaces a user's pending connection requests
// to a decision callback and resolves them with the answer.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/connections"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/store"
	"github.com/theleywin/workkie/src/tasks"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultInterval = 20 * time.Second

// DecisionFunc answers one pending request. Returning false leaves the
// request pending; it is offered again on the next tick.
type DecisionFunc func(ctx context.Context, req models.ConnectionRequest) (models.Decision, bool)

// Outcome is reported once for every request the poller tried to resolve.
type Outcome struct {
	Request    models.ConnectionRequest
	Decision   models.Decision
	Resolution connections.Resolution
	Err        error
}

type NotifyFunc func(Outcome)

type Poller struct {
	engine   *connections.Engine
	interval time.Duration
	timeout  time.Duration
}

func New(engine *connections.Engine, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{engine: engine, interval: interval, timeout: timeout}
}

// Handle is one running poll loop for one identity.
type Handle struct {
	poller   *Poller
	identity models.Identity
	decide   DecisionFunc
	notify   NotifyFunc
	runner   *tasks.Runner

	mu         sync.Mutex
	suppressed map[primitive.ObjectID]bool
}

// Start polls for identity until the handle is stopped. The first poll runs
// immediately. notify may be nil.
func (p *Poller) Start(ctx context.Context, identity models.Identity, decide DecisionFunc, notify NotifyFunc) *Handle {
	h := &Handle{
		poller:     p,
		identity:   identity,
		decide:     decide,
		notify:     notify,
		suppressed: map[primitive.ObjectID]bool{},
	}
	h.runner = tasks.NewRunner("poller", p.interval, h.tick)
	h.runner.Start(ctx)
	h.runner.Trigger()
	return h
}

// Poll asks for a poll now, outside the regular interval.
func (h *Handle) Poll() {
	h.runner.Trigger()
}

// Stop ends the loop. A poll in progress is allowed to finish; Stop returns
// after it has.
func (h *Handle) Stop() {
	h.runner.Stop()
}

// Skipped is the number of ticks dropped because the previous poll was
// still running.
func (h *Handle) Skipped() int64 {
	return h.runner.Skipped()
}

func (h *Handle) isSuppressed(id primitive.ObjectID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suppressed[id]
}

func (h *Handle) suppress(id primitive.ObjectID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.suppressed[id] = true
}

func (h *Handle) tick(ctx context.Context) {
	if !h.identity.Valid() {
		glog.V(1).Infof("[poller] %v, not polling", models.ErrNotAuthenticated)
		return
	}
	if 0 < h.poller.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.poller.timeout)
		defer cancel()
	}

	pending, err := h.poller.engine.ListPending(ctx, h.identity.UserID)
	if err != nil {
		glog.Warningf("[poller] list pending for %s: %v", h.identity.Username, err)
		return
	}
	for _, req := range pending {
		if h.isSuppressed(req.Id) {
			continue
		}
		decision, ok := h.decide(ctx, req)
		if !ok {
			continue
		}
		res, err := h.poller.engine.Resolve(ctx, h.identity, req.Id, decision)
		switch {
		case err == nil && res.Suppress:
			h.suppress(req.Id)
		case errors.Is(err, store.ErrNotFound):
			// resolved elsewhere since it was listed
			h.suppress(req.Id)
		case err != nil:
			glog.Warningf("[poller] resolve %s for %s: %v", req.Id.Hex(), h.identity.Username, err)
		}
		if h.notify != nil {
			h.notify(Outcome{Request: req, Decision: decision, Resolution: res, Err: err})
		}
	}
}
