// Package watch provides a versioned value that many goroutines can observe.
//
// Owners publish state (link status, session status) with Set. Observers call
// Wait or WaitFor and always receive the newest version together with its
// value, so nobody acts on a disconnected state after a reconnect has been
// published.
package watch

import (
	"context"
	"sync"
)

// Value holds the latest T and a monotonically increasing version.
type Value[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
}

// NewValue returns a Value holding initial at version 0.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		value:   initial,
		changed: make(chan struct{}),
	}
}

// Set publishes v and wakes every waiter. It returns the new version.
func (w *Value[T]) Set(v T) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.value = v
	w.version++
	close(w.changed)
	w.changed = make(chan struct{})
	return w.version
}

// Load returns the current value and version.
func (w *Value[T]) Load() (T, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.version
}

// Get returns the current value.
func (w *Value[T]) Get() T {
	v, _ := w.Load()
	return v
}

// Changed returns a channel that is closed on the next Set.
func (w *Value[T]) Changed() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed
}

// Wait blocks until the version exceeds after, then returns the latest value.
func (w *Value[T]) Wait(ctx context.Context, after uint64) (T, uint64, error) {
	for {
		w.mu.Lock()
		v, ver, ch := w.value, w.version, w.changed
		w.mu.Unlock()

		if ver > after {
			return v, ver, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, ver, ctx.Err()
		}
	}
}

// WaitFor blocks until the current value satisfies ok.
func (w *Value[T]) WaitFor(ctx context.Context, ok func(T) bool) (T, uint64, error) {
	for {
		w.mu.Lock()
		v, ver, ch := w.value, w.version, w.changed
		w.mu.Unlock()

		if ok(v) {
			return v, ver, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, ver, ctx.Err()
		}
	}
}
