package moodle

import (
	"errors"
	"fmt"
)

// ErrFunctionNotAllowed is returned before any network I/O when the caller
// asks for a web-service function outside the tenant's allowlist.
var ErrFunctionNotAllowed = errors.New("moodle: function not in tenant allowlist")

// APIError is a well-formed error envelope returned by the remote side
// (bad token, disabled function, invalid parameter). It indicates a
// configuration problem and must not be retried.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moodle: remote rejected call: %s (%s)", e.Message, e.Code)
}

// UnavailableError wraps transport failures, timeouts and 5xx responses.
// Callers may retry with backoff.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("moodle: source unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
