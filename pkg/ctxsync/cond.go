package ctxsync

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cond is a context-aware rendezvous point for goroutines waiting for or
// announcing the occurrence of an event. Unlike [sync.Cond] it carries no
// associated Locker: callers guard their own condition state however they
// like and only reach for Cond to park and resume goroutines, and
// WaiterCount lets a caller poll how many are currently parked.
//
// A Cond must not be copied after first use.
type Cond struct {
	notify  chan struct{}
	waiters atomic.Int64
	chMtx   sync.Mutex
}

// NewCond returns a ready-to-use Cond.
func NewCond() *Cond {
	return &Cond{notify: make(chan struct{}, 1)}
}

// Wait blocks until awoken by Signal or Broadcast. It is equivalent to
// WaitWithContext(context.Background()).
func (c *Cond) Wait() {
	_ = c.WaitWithContext(context.Background())
}

// WaitWithContext blocks until awoken by Signal, Broadcast, or context
// cancellation. Should be used in a loop that checks the condition.
func (c *Cond) WaitWithContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.waiters.Add(1)
	defer c.waiters.Add(-1)

	c.chMtx.Lock()
	notify := c.notify
	c.chMtx.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-notify:
		return nil
	}
}

// WaiterCount reports how many goroutines are currently parked in Wait or
// WaitWithContext.
func (c *Cond) WaiterCount() int64 {
	return c.waiters.Load()
}

// Signal wakes one waiting goroutine, if any. Does not guarantee ordering
// or priority.
func (c *Cond) Signal() {
	if c.waiters.Load() > 0 {
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// Broadcast wakes all waiting goroutines, if any.
func (c *Cond) Broadcast() {
	if c.waiters.Load() > 0 {
		c.chMtx.Lock()
		close(c.notify)
		c.notify = make(chan struct{})
		c.chMtx.Unlock()
	}
}
