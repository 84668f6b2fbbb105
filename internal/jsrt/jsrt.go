// Package jsrt hosts instrumented JavaScript in an embedded goja runtime with
// the wrap binding installed.
package jsrt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/DeusData/fntrace/internal/instrument"
	"github.com/DeusData/fntrace/internal/sink"
	"github.com/DeusData/fntrace/internal/wrapper"
)

// moduleHeader and moduleFooter enclose module text the way CommonJS loaders
// do. The header ends in a newline so user code starts on line 2.
const (
	moduleHeader = "(function (exports, module, __filename, __dirname) {\n"
	moduleFooter = "\n})"
)

// Rejection is the error reported for a rejected promise.
type Rejection struct {
	Reason goja.Value
}

func (r *Rejection) Error() string {
	if r.Reason == nil {
		return "promise rejected"
	}
	return "promise rejected: " + r.Reason.String()
}

// Runtime is a goja VM with the wrap binding installed. Like goja.Runtime it
// must be used from one goroutine at a time.
type Runtime struct {
	vm       *goja.Runtime
	wrap     *wrapper.Wrapper
	injector *instrument.Injector
	// queue is the Async created by New, nil when the caller supplied one.
	queue *sink.Async
}

// New creates a runtime whose traced calls report to s. A sink that is not
// already a *sink.Async is queued behind one owned by the runtime and flushed
// by Close.
func New(s wrapper.Sink, opts instrument.Options, wrapOpts ...wrapper.Option) (*Runtime, error) {
	r := &Runtime{
		vm:       goja.New(),
		injector: instrument.New(opts),
	}
	if err := r.vm.Set(r.injector.Binding(), r.wrapBinding); err != nil {
		return nil, fmt.Errorf("install %s: %w", r.injector.Binding(), err)
	}
	if err := r.installConsole(); err != nil {
		return nil, err
	}
	queued, ok := s.(*sink.Async)
	if !ok {
		queued = sink.NewAsync(s, 0)
		r.queue = queued
	}
	r.wrap = wrapper.New(queued, wrapOpts...)
	return r, nil
}

// Close delivers records still queued by the runtime. An Async passed to New
// is left for its owner to close.
func (r *Runtime) Close(ctx context.Context) error {
	if r.queue == nil {
		return nil
	}
	return r.queue.Close(ctx)
}

// VM exposes the underlying runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// RunScript instruments src and evaluates it as a script, returning the value
// of its last expression.
func (r *Runtime) RunScript(ctx context.Context, path, relPath string, src []byte) (goja.Value, *instrument.Result, error) {
	res, err := r.injector.Inject(instrument.File{Path: path, RelPath: relPath, Source: src})
	if err != nil {
		return nil, nil, err
	}

	stop := r.interruptOn(ctx)
	defer stop()
	v, err := r.vm.RunScript(path, string(res.Source))
	if err != nil {
		return nil, res, fmt.Errorf("run %s: %w", path, err)
	}
	return v, res, nil
}

// RunModule encloses src in a CommonJS-style function, instruments it as a
// wrapped file, runs it and returns module.exports.
func (r *Runtime) RunModule(ctx context.Context, path, relPath string, src []byte) (goja.Value, *instrument.Result, error) {
	text := moduleHeader + string(src) + moduleFooter
	res, err := r.injector.Inject(instrument.File{Path: path, RelPath: relPath, Source: []byte(text), Wrapped: true})
	if err != nil {
		return nil, nil, err
	}

	stop := r.interruptOn(ctx)
	defer stop()

	fnValue, err := r.vm.RunScript(path, string(res.Source))
	if err != nil {
		return nil, res, fmt.Errorf("load %s: %w", path, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, res, fmt.Errorf("load %s: module wrapper is not callable", path)
	}

	exports := r.vm.NewObject()
	module := r.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, res, err
	}
	_, err = fn(goja.Undefined(), exports, module, r.vm.ToValue(path), r.vm.ToValue(filepath.Dir(path)))
	if err != nil {
		return nil, res, fmt.Errorf("run %s: %w", path, err)
	}
	return module.Get("exports"), res, nil
}

func (r *Runtime) interruptOn(ctx context.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		r.vm.ClearInterrupt()
	}
}

// wrapBinding implements wrap(descriptor, thunk) for rewritten code.
func (r *Runtime) wrapBinding(call goja.FunctionCall) goja.Value {
	fields, _ := call.Argument(0).Export().(map[string]any)
	thunk, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(r.vm.NewTypeError("wrap: thunk is not a function"))
	}

	var pending *promiseResult
	res := r.wrap.Wrap(wrapper.Fields(fields), func() wrapper.Result {
		v, err := thunk(goja.Undefined())
		if err != nil {
			return wrapper.Immediate(nil, err)
		}
		if _, isPromise := v.Export().(*goja.Promise); isPromise {
			pending = &promiseResult{vm: r.vm, value: v}
			return wrapper.Deferred(pending)
		}
		return wrapper.Immediate(v, nil)
	})

	if pending != nil {
		return pending.value
	}
	if err := res.Err(); err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(r.vm.NewGoError(err))
	}
	v, _ := res.Value().(goja.Value)
	if v == nil {
		return goja.Undefined()
	}
	return v
}

// promiseResult observes a native promise through its then method. The
// observer chain handles rejections, so the original promise counts as
// handled.
type promiseResult struct {
	vm    *goja.Runtime
	value goja.Value
}

func (p *promiseResult) OnSettle(fn func(any, error)) {
	obj := p.value.ToObject(p.vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		fn(p.value, nil)
		return
	}
	onFulfilled := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fn(call.Argument(0), nil)
		return goja.Undefined()
	})
	onRejected := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		fn(nil, &Rejection{Reason: call.Argument(0)})
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		fn(nil, err)
	}
}

func (r *Runtime) installConsole() error {
	console := r.vm.NewObject()
	logAt := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			slog.Log(context.Background(), level, "js.console", "msg", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := console.Set(name, logAt(level)); err != nil {
			return fmt.Errorf("install console.%s: %w", name, err)
		}
	}
	return r.vm.Set("console", console)
}
