// Package runner executes background refresh tasks: fire-and-forget
// units that perform the expensive recomputation (subprocess, network)
// off the render path. A task is gated two ways: a singleflight group
// de-duplicates concurrent schedules within the process, and the
// cross-process lock coordinator ensures at most one holder per task
// name across every process sharing the cache directory.
package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/promptline/go-statusline/lock"
	"github.com/promptline/go-statusline/logger"
)

// Runner schedules detached background tasks.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	locks  *lock.Coordinator
	log    logger.Logger
	group  singleflight.Group
	wg     sync.WaitGroup
	once   sync.Once
}

// New returns a Runner whose tasks are cancelled when parent is.
func New(parent context.Context, locks *lock.Coordinator, log logger.Logger) *Runner {
	ctx, cancel := context.WithCancel(parent)
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		locks:  locks,
		log:    log.WithPrefix("runner"),
	}
}

// Schedule runs task asynchronously under the named lock and returns
// immediately; the caller never awaits completion. If another holder is
// in flight (in this process or any other) the call is a no-op by
// design, not an error. The lock is released unconditionally when the
// task returns, including on failure, so a failing producer cannot wedge
// its lock; a crashed holder's lock ages out at 2×timeout instead.
func (r *Runner) Schedule(name string, timeout time.Duration, task func(ctx context.Context) error) {
	ch := r.group.DoChan(name, func() (interface{}, error) {
		if !r.locks.Acquire(name, timeout) {
			r.log.Trace("skipping %s: refresh already in flight", name)
			return false, nil
		}
		defer r.locks.Release(name)
		ctx, cancel := context.WithTimeout(r.ctx, timeout)
		defer cancel()
		return true, task(ctx)
	})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := <-ch
		if res.Err != nil {
			// Producer failures are normal degraded operation: the prior
			// durable entry stays authoritative and the next miss retries.
			r.log.Debug("task %s failed: %v", name, res.Err)
		}
	}()
}

// Wait blocks until all currently scheduled tasks have finished.
// Intended for tests and orderly shutdown; new schedules during Wait
// are not excluded.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels in-flight task contexts and waits for them to drain.
func (r *Runner) Close() {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
	})
}
