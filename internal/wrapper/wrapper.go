// Package wrapper is the runtime side of instrumentation: every rewritten
// function body runs through Wrap, which times the call and reports one record
// per invocation without changing what the caller observes.
package wrapper

import (
	"fmt"
	"log/slog"
	"time"
)

// Measured record keys. They override descriptor fields of the same name.
const (
	KeyException = "exception"
	KeySpan      = "span"
)

// Record is one trace event: descriptor fields plus exception and span
// (fractional milliseconds).
type Record map[string]any

// Exception reports the record's failure flag.
func (r Record) Exception() bool {
	b, _ := r[KeyException].(bool)
	return b
}

// Span returns the record's duration in milliseconds.
func (r Record) Span() float64 {
	f, _ := r[KeySpan].(float64)
	return f
}

// Sink receives trace records. Log runs on the traced call's goroutine and
// must return without blocking; slow sinks belong behind sink.Async.
type Sink interface {
	Log(rec Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record)

// Log implements Sink.
func (f SinkFunc) Log(rec Record) { f(rec) }

// Descriptor supplies the static fields of a traced site.
type Descriptor interface {
	Fields() map[string]any
}

// Fields is a Descriptor backed by a plain map, as decoded from rewritten code.
type Fields map[string]any

// Fields implements Descriptor.
func (f Fields) Fields() map[string]any { return f }

// Wrapper times thunks and reports them to a sink.
type Wrapper struct {
	sink Sink
	now  func() time.Time
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Wrapper) { w.now = now }
}

// New creates a Wrapper reporting to sink. A nil sink discards records.
func New(sink Sink, opts ...Option) *Wrapper {
	w := &Wrapper{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wrap invokes thunk exactly once and returns its result unchanged.
//
// Immediate results and panics are reported before Wrap returns or the panic
// continues. Deferred results are returned at once; their record is emitted
// when the pending value settles, with the span measured from the call.
// A returned error, a panic or a rejection sets exception. Panics are
// re-raised with the identical value.
func (w *Wrapper) Wrap(d Descriptor, thunk Thunk) Result {
	start := w.now()

	panicking := true
	defer func() {
		if !panicking {
			return
		}
		r := recover()
		w.emit(d, true, start)
		// r is nil only for runtime.Goexit, which keeps unwinding by itself.
		if r != nil {
			panic(r)
		}
	}()
	res := thunk()
	panicking = false

	if p, ok := res.Pending(); ok {
		p.OnSettle(func(_ any, err error) {
			w.emit(d, err != nil, start)
		})
		return res
	}
	w.emit(d, res.Err() != nil, start)
	return res
}

func (w *Wrapper) emit(d Descriptor, exception bool, start time.Time) {
	span := float64(w.now().Sub(start)) / float64(time.Millisecond)
	if w.sink == nil {
		return
	}

	fields := d.Fields()
	rec := make(Record, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec[KeyException] = exception
	rec[KeySpan] = span

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("wrapper.sink", "err", fmt.Sprint(r), "id", rec["id"])
		}
	}()
	w.sink.Log(rec)
}

// Call traces fn as an immediate call and returns its outcome.
func Call[T any](w *Wrapper, d Descriptor, fn func() (T, error)) (T, error) {
	res := w.Wrap(d, func() Result {
		v, err := fn()
		return Immediate(v, err)
	})
	v, _ := res.Value().(T)
	return v, res.Err()
}
