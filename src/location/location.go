// Package location keeps a user's stored coordinates in step with the
// device's most recent fix.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/theleywin/workkie/src/models"
	"github.com/theleywin/workkie/src/repository"
	"github.com/theleywin/workkie/src/tasks"
)

// ErrNoLocation means there is no usable fix to store. It is not fatal.
var ErrNoLocation = errors.New("no usable location fix")

// Source reports the most recently observed device fix.
type Source interface {
	Coordinates() (lat, lon float64, ok bool)
}

// StaticSource is a Source whose fix is set by hand.
type StaticSource struct {
	mu       sync.Mutex
	lat, lon float64
	ok       bool
}

func NewStaticSource(lat, lon float64) *StaticSource {
	return &StaticSource{lat: lat, lon: lon, ok: true}
}

func (s *StaticSource) Set(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lat, s.lon, s.ok = lat, lon, true
}

func (s *StaticSource) Coordinates() (float64, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lat, s.lon, s.ok
}

type Syncer struct {
	users *repository.UserRepository
}

func NewSyncer(users *repository.UserRepository) *Syncer {
	return &Syncer{users: users}
}

// Sync stores the fix on the caller's record. Only the coordinate fields are
// written, so concurrent request writes to the same record are preserved.
func (s *Syncer) Sync(ctx context.Context, identity models.Identity, lat, lon float64) error {
	if !identity.Valid() {
		return models.ErrNotAuthenticated
	}
	if !models.ValidFix(lat, lon) {
		return ErrNoLocation
	}
	return s.users.SetCoordinates(ctx, identity.UserID, lat, lon)
}

// Task syncs the fix from a Source on an interval and whenever the app
// comes to the foreground. Failures are logged and never stop the task.
type Task struct {
	syncer   *Syncer
	identity models.Identity
	source   Source
	timeout  time.Duration
	runner   *tasks.Runner
}

func NewTask(syncer *Syncer, identity models.Identity, source Source, interval, timeout time.Duration) *Task {
	t := &Task{
		syncer:   syncer,
		identity: identity,
		source:   source,
		timeout:  timeout,
	}
	t.runner = tasks.NewRunner("location", interval, t.run)
	return t
}

func (t *Task) Start(ctx context.Context) {
	t.runner.Start(ctx)
}

// Foreground runs one sync now.
func (t *Task) Foreground() {
	t.runner.Trigger()
}

func (t *Task) Stop() {
	t.runner.Stop()
}

func (t *Task) run(ctx context.Context) {
	lat, lon, ok := t.source.Coordinates()
	if !ok {
		glog.V(1).Infof("[location] %s: %v", t.identity.Username, ErrNoLocation)
		return
	}
	if 0 < t.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	err := t.syncer.Sync(ctx, t.identity, lat, lon)
	switch {
	case err == nil:
		glog.V(2).Infof("[location] %s at (%f, %f)", t.identity.Username, lat, lon)
	case errors.Is(err, ErrNoLocation):
		glog.V(1).Infof("[location] %s: %v", t.identity.Username, err)
	default:
		glog.Warningf("[location] sync %s: %v", t.identity.Username, err)
	}
}
