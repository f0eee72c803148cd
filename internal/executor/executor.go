// Package executor implements [domain.Executor], a single-consumer FIFO task
// queue with a buffering/ready two-state machine.
package executor

import (
	"context"
	"sync"

	"github.com/Techpire/db/domain"
)

// pending is a task buffered while the executor is not yet ready.
type pending struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan struct{}
	err  error
}

// Executor implements [domain.Executor]. A single sync.Mutex (runMu) is the
// only thing that ever runs a task, so pushed tasks, forced tasks, and direct
// Lock/Unlock callers can never interleave with each other.
type Executor struct {
	runMu sync.Mutex

	mu     sync.Mutex
	ready  bool
	buffer []*pending
}

// New returns an [Executor] that starts out ready (non-buffering). Callers
// that need to buffer writes until a load finishes should call Bufferize
// immediately after construction.
func New() *Executor {
	return &Executor{ready: true}
}

// Bufferize implements domain.Executor.
func (e *Executor) Bufferize() {
	e.mu.Lock()
	e.ready = false
	e.mu.Unlock()
}

// Push implements domain.Executor.
func (e *Executor) Push(ctx context.Context, fn func(context.Context) error, forceQueuing bool) error {
	if forceQueuing {
		return e.runExclusive(ctx, fn)
	}

	e.mu.Lock()
	if e.ready {
		e.mu.Unlock()
		return e.runExclusive(ctx, fn)
	}
	p := &pending{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan struct{})}
	e.buffer = append(e.buffer, p)
	e.mu.Unlock()

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GoPush implements domain.Executor.
func (e *Executor) GoPush(ctx context.Context, fn func(context.Context) error, forceQueuing bool) <-chan error {
	result := make(chan error, 1)
	go func() { result <- e.Push(ctx, fn, forceQueuing) }()
	return result
}

// ProcessBuffer implements domain.Executor.
//
// The buffer and the ready flag flip atomically under mu so a task pushed
// concurrently with ProcessBuffer either lands in the drained buffer or sees
// ready=true and runs directly; it can never be appended to a buffer that
// nothing will ever drain again.
func (e *Executor) ProcessBuffer() {
	e.mu.Lock()
	buf := e.buffer
	e.buffer = nil
	e.ready = true
	e.mu.Unlock()

	for _, p := range buf {
		p.err = e.runExclusive(p.ctx, p.fn)
		close(p.done)
	}
}

// ResetBuffer implements domain.Executor.
func (e *Executor) ResetBuffer() {
	e.mu.Lock()
	buf := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	for _, p := range buf {
		p.err = domain.ErrBufferReset{}
		close(p.done)
	}
}

func (e *Executor) runExclusive(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return fn(ctx)
}

// LockWithContext acquires exclusive access to the executor's single
// consumer, returning ctx.Err() instead of blocking if ctx is already
// canceled. It lets callers that don't need the buffering semantics (the
// datastore façade's CRUD methods, which only ever run after load) use the
// executor as a plain context-aware mutex while still sharing the same
// exclusion with buffered and forced tasks.
func (e *Executor) LockWithContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	e.runMu.Lock()
	return nil
}

// Unlock releases the lock acquired by LockWithContext.
func (e *Executor) Unlock() {
	e.runMu.Unlock()
}

var _ domain.Executor = (*Executor)(nil)
