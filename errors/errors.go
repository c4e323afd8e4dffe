package errors

import "fmt"

// DetailedError is a VolumeError enriched with extra context while still
// unwrapping to its originating sentinel.
type DetailedError interface {
	error
	WithMessage(message string) DetailedError
	WrapError(err error) DetailedError
	Unwrap() error
}

// -----------------------------------------------------------------------------

type detailedError struct {
	message  string
	sentinel VolumeError
	wrapped  error
}

func (e detailedError) Error() string {
	return e.message
}

// Is lets errors.Is(err, xerrors.ErrX) match on the originating sentinel
// even after WrapError has replaced Unwrap's target with the wrapped error.
func (e detailedError) Is(target error) bool {
	return e.sentinel == target
}

func (e detailedError) WithMessage(message string) DetailedError {
	return detailedError{
		message:  fmt.Sprintf("%s: %s", e.message, message),
		sentinel: e.sentinel,
		wrapped:  e.wrapped,
	}
}

func (e detailedError) WrapError(err error) DetailedError {
	return detailedError{
		message:  fmt.Sprintf("%s: %s", e.message, err.Error()),
		sentinel: e.sentinel,
		wrapped:  err,
	}
}

// Unwrap exposes the wrapped error if one was attached via WrapError, so
// errors.Is/As can reach the underlying cause; sentinel matching is handled
// by Is instead, since WrapError overwrites this with the wrapped error.
func (e detailedError) Unwrap() error {
	if e.wrapped != nil {
		return e.wrapped
	}
	return e.sentinel
}
