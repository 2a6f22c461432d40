package response

import (
	"errors"
	"fmt"
)

type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{code, errors.New(err)}
}

// Wrap keeps the code of a sentinel while adding detail to its message.
func Wrap(sentinel error, format string, args ...interface{}) error {
	var e *Error
	if !errors.As(sentinel, &e) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
	}
	return &Error{Code: e.Code, Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)}
}

// CodeOf returns the status code attached to err, or fallback.
func CodeOf(err error, fallback int) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return fallback
}
