// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestInline_RunsOnCaller(t *testing.T) {
	t.Parallel()

	ran := false
	if err := (Inline{}).Run(t.Context(), func(context.Context) { ran = true }); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !ran {
		t.Error("Inline did not run fn")
	}
}

func TestOwnerLoop_SerializesAndNests(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	loop := NewOwnerLoop()
	go loop.Serve(ctx)

	var active, maxActive atomic.Int32
	done := make(chan error, 8)
	for range 8 {
		go func() {
			done <- loop.Run(ctx, func(ctx context.Context) {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				if !loop.IsOwner(ctx) {
					t.Error("call context not marked as owner")
				}
				// A nested call must not deadlock.
				_ = loop.Run(ctx, func(context.Context) {})
				active.Add(-1)
			})
		}()
	}
	for range 8 {
		if err := <-done; err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent calls = %d, want 1", maxActive.Load())
	}
	if loop.IsOwner(ctx) {
		t.Error("outside context reported as owner")
	}
}

func TestOwnerLoop_Stopped(t *testing.T) {
	t.Parallel()

	loop := NewOwnerLoop()
	loop.Stop()
	loop.Stop()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	err := loop.Run(ctx, func(context.Context) { t.Error("fn ran after Stop") })
	if !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("Run() error = %v, want ErrDispatcherStopped", err)
	}
}
