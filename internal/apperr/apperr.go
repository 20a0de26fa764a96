// Package apperr defines the error taxonomy shared by connectors and model providers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindTransient Kind = "transient"
	KindDataShape Kind = "data_shape"
	KindModel     Kind = "model"
)

// Sentinels for errors.Is checks.
var (
	ErrAuth      = errors.New("authentication failed")
	ErrTransient = errors.New("transient failure")
	ErrDataShape = errors.New("unexpected data shape")
	ErrModel     = errors.New("language model failure")
)

// Error is a classified failure of a named operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrDataShape:
		return e.Kind == KindDataShape
	case ErrModel:
		return e.Kind == KindModel
	}
	return false
}

// Auth wraps err as an authentication failure of op.
func Auth(op string, err error) error { return &Error{Kind: KindAuth, Op: op, Err: err} }

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) error { return &Error{Kind: KindTransient, Op: op, Err: err} }

// DataShape wraps err as a missing-field or malformed-record failure of op.
func DataShape(op string, err error) error { return &Error{Kind: KindDataShape, Op: op, Err: err} }

// Model wraps err as a language-model failure of op.
func Model(op string, err error) error { return &Error{Kind: KindModel, Op: op, Err: err} }

// KindOf returns the kind of the first classified error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromStatus classifies an HTTP status code returned by a remote API.
// Statuses that are neither auth nor retryable are reported as data-shape failures.
func FromStatus(op string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return Auth(op, err)
	case status == 408 || status == 429 || status >= 500:
		return Transient(op, err)
	default:
		return DataShape(op, err)
	}
}
