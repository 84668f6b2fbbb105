package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/DeusData/fntrace/internal/wrapper"
)

// DefaultQueueSize is the Async buffer size used when none is given.
const DefaultQueueSize = 4096

// Async hands records to an inner sink on a single background goroutine, so
// traced calls never wait for slow sinks. Records from one goroutine keep
// their order. When the queue is full records are dropped.
type Async struct {
	inner   wrapper.Sink
	queue   chan wrapper.Record
	done    chan struct{}
	dropped atomic.Int64
	warn    *rate.Limiter

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsync starts an Async sink in front of inner.
func NewAsync(inner wrapper.Sink, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		inner: inner,
		queue: make(chan wrapper.Record, size),
		done:  make(chan struct{}),
		warn:  rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	go a.drain()
	return a
}

// Log implements wrapper.Sink without blocking.
func (a *Async) Log(rec wrapper.Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop()
		return
	}
	select {
	case a.queue <- rec:
	default:
		a.drop()
	}
}

func (a *Async) drop() {
	n := a.dropped.Add(1)
	if a.warn.Allow() {
		slog.Warn("sink.async.dropped", "total", n)
	}
}

// Dropped returns how many records were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) drain() {
	defer close(a.done)
	for rec := range a.queue {
		logOne(a.inner, rec)
	}
}

// Close stops accepting records and waits until queued ones are delivered or
// ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
