// Package xerrors defines the registry's stable error codes and a typed
// error that carries one of them plus a human-readable detail and, where
// relevant, the failing processor id.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the stable error codes from the external interface.
type Code string

const (
	NoProcessorsAvailable Code = "NoProcessorsAvailable"
	ProcessorNotFound      Code = "ProcessorNotFound"
	CapacityExceeded       Code = "CapacityExceeded"
	BatchBufferBusy        Code = "BatchBufferBusy"
	MigrationCooldown      Code = "MigrationCooldown"
	MigrationInProgress    Code = "MigrationInProgress"
	HealthCheckTimeout     Code = "HealthCheckTimeout"
	InvalidConfiguration   Code = "InvalidConfiguration"
	IndexInconsistency     Code = "IndexInconsistency"
)

// Error is the typed, user-visible failure every operation returns instead
// of an ad-hoc error string.
type Error struct {
	Code        Code
	Detail      string
	ProcessorID string
	cause       error
}

func (e *Error) Error() string {
	if e.ProcessorID != "" {
		return fmt.Sprintf("%s: %s (processor %s)", e.Code, e.Detail, e.ProcessorID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Cause exposes the wrapped cause to github.com/pkg/errors.Cause.
func (e *Error) Cause() error { return e.cause }

// New builds a fresh typed error with no cause.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap attaches code/detail to an underlying cause, preserving it for
// errors.Cause the way the rest of the codebase wraps lower-level errors.
func Wrap(cause error, code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail, cause: errors.WithStack(cause)}
}

// WithProcessor returns a copy of e naming the failing processor.
func (e *Error) WithProcessor(id string) *Error {
	cp := *e
	cp.ProcessorID = id
	return &cp
}

// Is reports whether err is an *Error carrying code.
func Is(err error, code Code) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
