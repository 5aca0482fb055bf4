// Package engine is the typed surface over the external vector engine:
// schemas, documents, queries and the engine's status taxonomy.
package engine

import (
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// StatusCode is the engine's closed error taxonomy.
type StatusCode uint32

const (
	StatusOK StatusCode = iota
	StatusNotFound
	StatusAlreadyExists
	StatusInvalidArgument
	StatusNotSupported
	StatusInternal
	StatusPermissionDenied
	StatusFailedPrecondition
	StatusUnknown
)

// String returns the snake_case name used in logs and API responses.
func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusAlreadyExists:
		return "already_exists"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusNotSupported:
		return "not_supported"
	case StatusInternal:
		return "internal"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusFailedPrecondition:
		return "failed_precondition"
	default:
		return "unknown"
	}
}

func (c StatusCode) label() string {
	switch c {
	case StatusNotFound:
		return "not found"
	case StatusAlreadyExists:
		return "already exists"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusNotSupported:
		return "not supported"
	case StatusInternal:
		return "internal error"
	case StatusPermissionDenied:
		return "permission denied"
	case StatusFailedPrecondition:
		return "failed precondition"
	default:
		return "unknown error"
	}
}

// StatusFromCode maps a raw engine status; anything out of range is Unknown.
func StatusFromCode(code uint32) StatusCode {
	if code > uint32(StatusUnknown) {
		return StatusUnknown
	}
	return StatusCode(code)
}

// StatusFromHTTP translates an HTTP engine response status.
func StatusFromHTTP(status int) StatusCode {
	switch {
	case status >= 200 && status < 300:
		return StatusOK
	case status == http.StatusNotFound:
		return StatusNotFound
	case status == http.StatusConflict:
		return StatusAlreadyExists
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return StatusInvalidArgument
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return StatusPermissionDenied
	case status == http.StatusNotImplemented, status == http.StatusMethodNotAllowed:
		return StatusNotSupported
	case status == http.StatusPreconditionFailed:
		return StatusFailedPrecondition
	case status >= 500:
		return StatusInternal
	default:
		return StatusUnknown
	}
}

// CheckStatus returns nil for StatusOK and a coded error otherwise.
func CheckStatus(code StatusCode, msg string) error {
	if code == StatusOK {
		return nil
	}
	return Errorf(code, "%s", msg)
}

// Errorf builds an error tagged with code.
func Errorf(code StatusCode, format string, args ...any) error {
	if code == StatusOK {
		code = StatusUnknown
	}
	return oops.Code(code).Errorf("%s: %s", code.label(), fmt.Sprintf(format, args...))
}

// Wrap tags err with code, keeping it in the chain.
func Wrap(err error, code StatusCode, msg string) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, "%s", msg)
}

// CodeOf returns the status carried by err. Untagged errors are Unknown.
func CodeOf(err error) StatusCode {
	if err == nil {
		return StatusOK
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return StatusUnknown
	}
	if code, ok := oopsErr.Code().(StatusCode); ok {
		return code
	}
	return StatusUnknown
}

// IsCode reports whether err carries code.
func IsCode(err error, code StatusCode) bool {
	return err != nil && CodeOf(err) == code
}

// ErrDimensionMismatch reports a vector of the wrong length.
func ErrDimensionMismatch(expected, actual int) error {
	return oops.Code(StatusInvalidArgument).
		With("expected", expected, "actual", actual).
		Errorf("vector dimension mismatch: expected %d, got %d", expected, actual)
}

// ErrFieldNotFound reports a reference to a field missing from the schema.
func ErrFieldNotFound(name string) error {
	return oops.Code(StatusNotFound).With("field", name).Errorf("field not found: %s", name)
}

// ErrCollectionNotFound reports a missing collection.
func ErrCollectionNotFound(name string) error {
	return oops.Code(StatusNotFound).With("collection", name).Errorf("collection not found: %s", name)
}
