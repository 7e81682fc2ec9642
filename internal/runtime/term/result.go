package term

import (
	"fmt"
	"strings"
)

// Result carries either a successful value or the failure that prevented it.
type Result[T any] struct {
	value T
	err   error
}

// Success wraps a successful value.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps an operation error. A nil err yields a Result that still
// encodes as an error so callers never observe an unwrapped payload.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("operation failed without an error value")
	}
	return Result[T]{err: err}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(value)
}

// Value returns the wrapped value and error.
func (r Result[T]) Value() (T, error) {
	return r.value, r.err
}

// Encode renders the result as {ok, Payload} or {error, Message}.
func Encode[T any](r Result[T], encode func(T) Term) Term {
	if r.err != nil {
		return ErrorTuple(ErrorMessage(r.err))
	}
	return OkTuple(encode(r.value))
}

// OkTuple wraps payload as {ok, Payload}.
func OkTuple(payload Term) Tuple {
	return Tuple{OK, payload}
}

// ErrorTuple wraps message as {error, <<Message>>}.
func ErrorTuple(message string) Tuple {
	return Tuple{Err, Binary(message)}
}

// ErrorMessage extracts the message that crosses the process boundary. Only the
// text of err survives; an empty text is replaced by the error's type so the
// caller never receives an empty reason.
func ErrorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return fmt.Sprintf("%T", err)
	}
	return msg
}
