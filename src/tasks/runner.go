// Package tasks runs a function periodically and on demand, never more than
// one invocation at a time.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

type Runner struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	running  sync.Mutex
	inFlight sync.WaitGroup
	trigger  chan struct{}
	stop     chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	runs    atomic.Int64
	skipped atomic.Int64
}

// NewRunner returns a stopped runner. A zero interval disables the ticker;
// the runner then only runs on Trigger.
func NewRunner(name string, interval time.Duration, fn func(ctx context.Context)) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		fn:       fn,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins ticking. ctx is handed to every run; Stop does not cancel it,
// so a run in flight when Stop is called completes normally.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.loop(ctx)
		glog.V(1).Infof("[%s] started (every %s)", r.name, r.interval)
	})
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	var tick <-chan time.Time
	if 0 < r.interval {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-tick:
		case <-r.trigger:
		}
		// a stop that raced with the tick wins
		select {
		case <-r.stop:
			return
		default:
		}
		r.runOnce(ctx)
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if !r.running.TryLock() {
		r.skipped.Add(1)
		glog.V(2).Infof("[%s] previous run still in flight, skipping", r.name)
		return
	}
	r.inFlight.Add(1)
	go func() {
		defer r.inFlight.Done()
		defer r.running.Unlock()
		r.runs.Add(1)
		r.fn(ctx)
	}()
}

// Trigger requests a run as soon as possible. Triggers that arrive while one
// is already queued are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Stop prevents further runs and waits for the one in flight, if any.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.startOnce.Do(func() {
		close(r.done)
	})
	<-r.done
	r.inFlight.Wait()
	glog.V(1).Infof("[%s] stopped after %d runs, %d skipped", r.name, r.runs.Load(), r.skipped.Load())
}

// Runs is the number of runs started so far.
func (r *Runner) Runs() int64 {
	return r.runs.Load()
}

// Skipped is the number of ticks dropped because a run was still in flight.
func (r *Runner) Skipped() int64 {
	return r.skipped.Load()
}
