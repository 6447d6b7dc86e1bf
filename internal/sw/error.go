package sw

import (
	"errors"
	"fmt"
)

// Error carries the status word a failure should be answered with.
type Error struct {
	Status StatusWord
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sw %s (0x%s)", e.Status, e.Status.Hex())
	}
	return fmt.Sprintf("sw %s (0x%s): %v", e.Status, e.Status.Hex(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with a plain message.
func New(status StatusWord, msg string) error {
	if msg == "" {
		return &Error{Status: status}
	}
	return &Error{Status: status, Err: errors.New(msg)}
}

// Wrap attaches status to err. A nil err still yields an Error.
func Wrap(status StatusWord, err error) error {
	return &Error{Status: status, Err: err}
}

// FromError returns the outermost status word attached to err.
func FromError(err error) (StatusWord, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
