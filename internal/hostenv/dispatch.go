// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatcherStopped is returned by OwnerLoop.Run after Stop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

type (
	// Dispatcher runs calls on the goroutine that owns the host state.
	Dispatcher interface {
		// Run executes fn on the owner and blocks until it returns.
		Run(ctx context.Context, fn func(ctx context.Context)) error
	}

	// Inline runs every call directly on the calling goroutine. It is the
	// dispatcher of headless hosts.
	Inline struct{}

	// OwnerLoop funnels calls to a single goroutine running Serve. Calls made
	// from inside a call run inline.
	OwnerLoop struct {
		calls    chan ownerCall
		stopped  chan struct{}
		stopOnce sync.Once
	}

	ownerCall struct {
		ctx  context.Context
		fn   func(ctx context.Context)
		done chan struct{}
	}

	ownerKey struct{}
)

// Run implements Dispatcher.
func (Inline) Run(ctx context.Context, fn func(ctx context.Context)) error {
	fn(ctx)
	return nil
}

// NewOwnerLoop creates a loop; start it with Serve on the owner goroutine.
func NewOwnerLoop() *OwnerLoop {
	return &OwnerLoop{
		calls:   make(chan ownerCall),
		stopped: make(chan struct{}),
	}
}

// Serve executes calls until ctx ends or Stop is called.
func (l *OwnerLoop) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.stopped:
			return
		case c := <-l.calls:
			c.fn(context.WithValue(c.ctx, ownerKey{}, l))
			close(c.done)
		}
	}
}

// Run implements Dispatcher.
func (l *OwnerLoop) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if l.IsOwner(ctx) {
		fn(ctx)
		return nil
	}

	c := ownerCall{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case l.calls <- c:
	case <-l.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

// IsOwner reports whether ctx belongs to a call running on this loop.
func (l *OwnerLoop) IsOwner(ctx context.Context) bool {
	owner, _ := ctx.Value(ownerKey{}).(*OwnerLoop)
	return owner == l
}

// Stop ends Serve. Pending and future Run calls fail with ErrDispatcherStopped.
func (l *OwnerLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}
