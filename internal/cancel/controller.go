// Package cancel provides the cooperative cancellation controller shared by
// all sessions of one orchestrator instance.
package cancel

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultGracePeriod bounds how long Shutdown waits for active tasks.
const DefaultGracePeriod = 10 * time.Second

// Controller is the single point of truth for "should new work start" and
// "should active work stop". It is an explicit instance owned by one
// orchestrator, never ambient state. Safe for concurrent use.
type Controller struct {
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once

	mu      sync.Mutex
	active  map[string]struct{}
	waiters []chan struct{}
}

// NewController returns a Controller with an empty active-task registry.
func NewController() *Controller {
	return &Controller{
		done:   make(chan struct{}),
		active: make(map[string]struct{}),
	}
}

// Cancel sets the shared flag. Idempotent; it does not touch in-flight
// network calls.
func (c *Controller) Cancel() {
	c.once.Do(func() {
		c.cancelled.Store(true)
		close(c.done)
	})
}

// Cancelled is the read-only probe consulted at every suspension point.
func (c *Controller) Cancelled() bool {
	return c.cancelled.Load()
}

// Done returns a channel closed when the signal is set, for select-based
// early wakeup of poll sleeps.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Register records a task handle as actively running.
func (c *Controller) Register(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[handle] = struct{}{}
}

// Unregister removes a task handle. When the registry drains, pending
// Shutdown waiters are released.
func (c *Controller) Unregister(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, handle)
	if len(c.active) == 0 {
		for _, w := range c.waiters {
			close(w)
		}
		c.waiters = nil
	}
}

// ActiveCount reports how many task handles are currently registered.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Shutdown sets the flag and waits up to gracePeriod for all registered
// tasks to finish. Tasks still active after the grace period are abandoned,
// not awaited further; their eventual results are discarded by the caller.
// Returns true if the registry drained in time.
func (c *Controller) Shutdown(gracePeriod time.Duration) bool {
	c.Cancel()
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}

	c.mu.Lock()
	if len(c.active) == 0 {
		c.mu.Unlock()
		return true
	}
	drained := make(chan struct{})
	c.waiters = append(c.waiters, drained)
	c.mu.Unlock()

	timer := time.NewTimer(gracePeriod)
	defer timer.Stop()
	select {
	case <-drained:
		return true
	case <-timer.C:
		return false
	}
}
