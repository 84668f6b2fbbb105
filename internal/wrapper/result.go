package wrapper

// Pending is an asynchronous value that settles once, to a value or an error.
type Pending interface {
	// OnSettle registers fn to run once the value settles. Registering after
	// settlement runs fn with the settled outcome.
	OnSettle(fn func(value any, err error))
}

// Result is what a thunk produces: either an immediate outcome or a pending one.
type Result struct {
	value   any
	err     error
	pending Pending
}

// Immediate is a result available at return time. A non-nil err marks failure.
func Immediate(value any, err error) Result {
	return Result{value: value, err: err}
}

// Deferred is a result that settles later.
func Deferred(p Pending) Result {
	return Result{pending: p}
}

// Value returns the immediate value.
func (r Result) Value() any { return r.value }

// Err returns the immediate error.
func (r Result) Err() error { return r.err }

// Pending returns the pending value of a deferred result.
func (r Result) Pending() (Pending, bool) {
	return r.pending, r.pending != nil
}

// Thunk runs a traced function's original body.
type Thunk func() Result
