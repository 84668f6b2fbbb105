package jsrt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/fntrace/internal/instrument"
	"github.com/DeusData/fntrace/internal/sink"
	"github.com/DeusData/fntrace/internal/wrapper"
)

type recorder struct {
	mu      sync.Mutex
	records []wrapper.Record
}

func (r *recorder) Log(rec wrapper.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		name, _ := rec["name"].(string)
		out = append(out, name)
	}
	return out
}

func newRuntime(t *testing.T) (*Runtime, *recorder) {
	t.Helper()
	rec := &recorder{}
	rt, err := New(rec, instrument.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt, rec
}

// flush waits until every record emitted so far reached the recorder.
func flush(t *testing.T, rt *Runtime) {
	t.Helper()
	require.NoError(t, rt.Close(context.Background()))
}

func run(t *testing.T, rt *Runtime, src string) goja.Value {
	t.Helper()
	v, _, err := rt.RunScript(context.Background(), "test.js", "test.js", []byte(src))
	require.NoError(t, err)
	return v
}

func TestReturnValuesPreserved(t *testing.T) {
	rt, rec := newRuntime(t)
	v := run(t, rt, `
function add(a, b) { return a + b; }
var twice = function (x) { return add(x, x); };
twice(21);
`)
	assert.Equal(t, int64(42), v.Export())
	flush(t, rt)
	assert.Equal(t, []string{"add", "twice"}, rec.names())
}

func TestThrownErrorIsIdentical(t *testing.T) {
	rt, rec := newRuntime(t)
	v := run(t, rt, `
var E = new Error("E");
function thrower() { throw E; }
var same = false;
try { thrower(); } catch (e) { same = (e === E); }
same;
`)
	assert.Equal(t, true, v.Export())
	flush(t, rt)
	require.Len(t, rec.records, 1)
	assert.Equal(t, true, rec.records[0]["exception"])
}

func TestThisAndArgumentsPreserved(t *testing.T) {
	rt, _ := newRuntime(t)
	v := run(t, rt, `
var o = { x: 5, total: function (a, b) { return this.x + arguments.length; } };
o.total(1, 2, 3);
`)
	assert.Equal(t, int64(8), v.Export())
}

func TestSuperAndClassesPreserved(t *testing.T) {
	rt, rec := newRuntime(t)
	v := run(t, rt, `
class A { constructor() { this.tag = "A"; } hi() { return this.tag; } }
class B extends A { hi() { return super.hi() + "B"; } }
new B().hi();
`)
	assert.Equal(t, "AB", v.Export())
	flush(t, rt)
	assert.Equal(t, []string{"hi", "hi"}, rec.names())
}

func TestGeneratorsUntouchedAndWorking(t *testing.T) {
	rt, rec := newRuntime(t)
	v := run(t, rt, `
function* count() { yield 1; yield 2; }
var n = 0;
for (var x of count()) { n += x; }
n;
`)
	assert.Equal(t, int64(3), v.Export())
	flush(t, rt)
	assert.Empty(t, rec.names())
}

func TestAsyncSettlement(t *testing.T) {
	rt, rec := newRuntime(t)
	v := run(t, rt, `
var out = [];
async function ok() { return "ok"; }
async function bad() { throw new Error("E"); }
var p = ok();
var same = p instanceof Promise;
p.then(v => out.push(v));
bad().catch(e => out.push(e.message));
same;
`)
	assert.Equal(t, true, v.Export())

	out := rt.VM().Get("out").Export()
	assert.ElementsMatch(t, []any{"ok", "E"}, out)

	flush(t, rt)
	require.Len(t, rec.records, 2)
	byName := map[string]wrapper.Record{}
	for _, r := range rec.records {
		byName[r["name"].(string)] = r
	}
	assert.Equal(t, false, byName["ok"]["exception"])
	assert.Equal(t, true, byName["bad"]["exception"])
	assert.Equal(t, true, byName["ok"]["isAsync"])
}

func TestAwaitInsideInstrumentedBody(t *testing.T) {
	rt, rec := newRuntime(t)
	run(t, rt, `
var result;
async function inner(x) { return x * 2; }
async function outer() { var a = await inner(2); return a + 1; }
outer().then(v => { result = v; });
`)
	assert.Equal(t, int64(5), rt.VM().Get("result").Export())
	flush(t, rt)
	assert.ElementsMatch(t, []string{"inner", "outer", instrument.Anonymous}, rec.names())
}

func TestRunModule(t *testing.T) {
	rt, rec := newRuntime(t)
	src := "exports.add = function (a, b) { return a + b; };\nmodule.exports.file = __filename;\n"

	exports, res, err := rt.RunModule(context.Background(), "/proj/lib/math.js", "lib/math.js", []byte(src))
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "exports.add", res.Functions[0].Name)
	assert.Equal(t, 1, res.Functions[0].StartLine)

	obj := exports.ToObject(rt.VM())
	add, ok := goja.AssertFunction(obj.Get("add"))
	require.True(t, ok)
	sum, err := add(goja.Undefined(), rt.VM().ToValue(2), rt.VM().ToValue(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Export())
	assert.Equal(t, "/proj/lib/math.js", obj.Get("file").Export())
	flush(t, rt)
	assert.Equal(t, []string{"exports.add"}, rec.names())
}

func TestCustomBinding(t *testing.T) {
	rec := &recorder{}
	rt, err := New(rec, instrument.Options{Binding: "__trace"})
	require.NoError(t, err)

	v, res, err := rt.RunScript(context.Background(), "b.js", "b.js", []byte("function f() { return 1; }\nf();"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Export())
	assert.Contains(t, string(res.Source), "__trace(")
	flush(t, rt)
	assert.Len(t, rec.records, 1)
}

func TestSyntaxErrorSurfaces(t *testing.T) {
	rt, _ := newRuntime(t)
	_, _, err := rt.RunScript(context.Background(), "bad.js", "bad.js", []byte("function ( {"))
	assert.ErrorIs(t, err, instrument.ErrSyntax)
}

func TestInterruptedByContext(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := rt.RunScript(ctx, "loop.js", "loop.js", []byte("for (;;) {}"))
	assert.Error(t, err)
}

func TestSlowSinkDoesNotDelayCalls(t *testing.T) {
	release := make(chan struct{})
	rec := &recorder{}
	slow := wrapper.SinkFunc(func(r wrapper.Record) {
		<-release
		rec.Log(r)
	})
	rt, err := New(slow, instrument.Options{})
	require.NoError(t, err)

	done := make(chan goja.Value, 1)
	go func() {
		v, _, runErr := rt.RunScript(context.Background(), "s.js", "s.js",
			[]byte("function f() { return 7; }\nf() + f();"))
		if runErr != nil {
			v = nil
		}
		done <- v
	}()

	select {
	case v := <-done:
		require.NotNil(t, v)
		assert.Equal(t, int64(14), v.Export())
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("traced calls waited for the sink")
	}
	assert.Empty(t, rec.names())

	close(release)
	flush(t, rt)
	assert.Equal(t, []string{"f", "f"}, rec.names())
}

func TestCallerAsyncLeftOpen(t *testing.T) {
	rec := &recorder{}
	queue := sink.NewAsync(rec, 0)
	rt, err := New(queue, instrument.Options{})
	require.NoError(t, err)

	run(t, rt, "function g() { return 1; }\ng();")
	require.NoError(t, rt.Close(context.Background()))
	run(t, rt, "g();")

	require.NoError(t, queue.Close(context.Background()))
	assert.Equal(t, []string{"g", "g"}, rec.names())
	assert.Zero(t, queue.Dropped())
}
