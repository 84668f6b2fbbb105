package wrapper

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadySettled is returned when a Future is settled twice.
var ErrAlreadySettled = errors.New("future already settled")

// Future is a concurrency-safe Pending.
type Future struct {
	mu        sync.Mutex
	settled   bool
	value     any
	err       error
	observers []func(any, error)
	done      chan struct{}
}

// NewFuture creates an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles the future with a value.
func (f *Future) Resolve(value any) error {
	return f.settle(value, nil)
}

// Reject settles the future with an error.
func (f *Future) Reject(err error) error {
	return f.settle(nil, err)
}

func (f *Future) settle(value any, err error) error {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return ErrAlreadySettled
	}
	f.settled = true
	f.value, f.err = value, err
	observers := f.observers
	f.observers = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(value, err)
	}
	return nil
}

// OnSettle implements Pending. Observers run in registration order, outside
// the future's lock.
func (f *Future) OnSettle(fn func(value any, err error)) {
	f.mu.Lock()
	if !f.settled {
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
