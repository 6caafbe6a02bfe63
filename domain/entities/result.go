package entities

// Result is the outcome of one boundary call: either a value or an error
// message, never both. It is the Go-side form of an envelope; the two-field
// C struct is only ever produced from, or read into, a Result.
type Result[T any] struct {
	value  T
	err    string
	failed bool
}

// Ok returns a successful result carrying v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail returns a failed result carrying msg.
// An empty message is still a failure.
func Fail[T any](msg string) Result[T] {
	return Result[T]{err: msg, failed: true}
}

// FromError returns Fail(err.Error()) when err is non-nil and Ok(v) otherwise.
func FromError[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err.Error())
	}
	return Ok(v)
}

// IsOk reports whether the result succeeded.
func (r Result[T]) IsOk() bool {
	return !r.failed
}

// Value returns the value and true on success. On failure it returns the
// zero value and false; the value of a failed result is never observable.
func (r Result[T]) Value() (T, bool) {
	if r.failed {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Err returns the error message and true on failure.
func (r Result[T]) Err() (string, bool) {
	return r.err, r.failed
}

// Match calls exactly one of ok or fail.
func (r Result[T]) Match(ok func(T), fail func(string)) {
	if r.failed {
		fail(r.err)
		return
	}
	ok(r.value)
}
