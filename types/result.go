package types

// Result is the outcome of a gateway write. It replaces the loose
// {"success": bool, "error": str} shape the remote API deals in with an
// explicit success/failure variant carrying a typed error.
type Result struct {
	ok  bool
	err *Error
}

// OK returns a success result.
func OK() Result {
	return Result{ok: true}
}

// Fail returns a failure result carrying the given error.
func Fail(err *Error) Result {
	return Result{err: err}
}

// Success reports whether the operation succeeded.
func (r Result) Success() bool {
	return r.ok
}

// Err returns the failure error, or nil on success.
func (r Result) Err() *Error {
	return r.err
}
