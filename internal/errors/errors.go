package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind says which class of failure an error is, and prefixes the body shown to clients.
type Kind string

const (
	KindNotFound Kind = "Not found"
	KindUpstream Kind = "Upstream error"
	KindInternal Kind = "Worker error"
)

// Error represents a failure that is meant to be shown to a client.
type Error struct {
	Status int
	Kind   Kind
	Err    error // The error this wraps
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s: %v", e.Status, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Body is the plain text response body for the error.
func (e *Error) Body() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// E builds an [Error] from any mix of a message, a wrapped error, a status code and a [Kind].
//
// Defaults to a 500 internal error.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
		Kind:   KindInternal,
		Err:    nil,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Kind:
			ret.Kind = arg
		}
	}

	return ret
}
