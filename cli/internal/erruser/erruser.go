// Package erruser provides errors whose Error() returns only a user-facing
// message. The technical cause stays reachable via Unwrap() for the
// diagnostic log and "Details:" output, so the primary line shown to the
// user never contains command lines or exit codes.
package erruser

import "errors"

// Err pairs a user-facing message with an optional cause.
type Err struct {
	Msg string
	Err error
}

// Error returns the user-facing message only.
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

// Unwrap returns the underlying cause for logging, or nil.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error carrying the given user-facing message. When err is
// non-nil it becomes the wrapped cause; when nil a plain error is returned.
func New(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return &Err{Msg: msg, Err: err}
}
