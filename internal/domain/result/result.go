// Package result provides the success/failure outcome returned by every
// request handler. Expected failures travel as values, never as panics.
package result

// Result is either a success carrying a value or a failure carrying an Error.
// The zero Result is a failure with code UNEXPECTED.
type Result[T any] struct {
	value T
	err   Error
	ok    bool
}

// Success wraps v as a successful outcome.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Failure wraps e as a failed outcome. An empty code is replaced by
// CodeUnexpected so every failure carries a code.
func Failure[T any](e Error) Result[T] {
	if e.Code == "" {
		e.Code = CodeUnexpected
	}
	if e.Kind == "" {
		e.Kind = KindUnexpected
	}
	return Result[T]{err: e}
}

// FailureFrom maps err with FromError and wraps it as a failure.
func FailureFrom[T any](err error) Result[T] {
	return Failure[T](FromError(err))
}

// NotImplemented is returned by handlers whose behavior has not been designed yet.
func NotImplemented[T any](operation string) Result[T] {
	return Failure[T](Unexpected(CodeNotImplemented, operation+" is not implemented"))
}

// IsSuccess reports whether the outcome carries a value.
func (r Result[T]) IsSuccess() bool { return r.ok }

// IsFailure reports whether the outcome carries an error.
func (r Result[T]) IsFailure() bool { return !r.ok }

// Value returns the wrapped value. Calling it on a failure is a programming
// error and panics with *InvalidStateError.
func (r Result[T]) Value() T {
	if !r.ok {
		panic(&InvalidStateError{Err: r.Err()})
	}
	return r.value
}

// ValueOr returns the wrapped value, or def on failure.
func (r Result[T]) ValueOr(def T) T {
	if !r.ok {
		return def
	}
	return r.value
}

// Err returns the failure error. It is the zero Error on success.
func (r Result[T]) Err() Error {
	if !r.ok && r.err.Code == "" {
		return Unexpected(CodeUnexpected, "uninitialised result")
	}
	return r.err
}

// Unwrap converts the outcome into Go's (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if !r.ok {
		var zero T
		return zero, r.Err()
	}
	return r.value, nil
}

// Ensure turns a success whose value fails pred into Failure(onFail).
// Failures pass through untouched and pred is not called.
func (r Result[T]) Ensure(pred func(T) bool, onFail Error) Result[T] {
	if !r.ok {
		return r
	}
	if pred(r.value) {
		return r
	}
	return Failure[T](onFail)
}

// Map applies f to a successful value. On failure the error is propagated
// unchanged and f is never invoked.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if !r.ok {
		return Result[U]{err: r.Err()}
	}
	return Success(f(r.value))
}

// Bind chains an outcome-returning step onto a successful value.
func Bind[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if !r.ok {
		return Result[U]{err: r.Err()}
	}
	return f(r.value)
}

// From builds an outcome from Go's (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return FailureFrom[T](err)
	}
	return Success(v)
}
