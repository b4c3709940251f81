// Package apperrors defines the error taxonomy shared by all services.
// Handlers map each kind to an HTTP status; services never return bare
// fmt.Errorf for conditions a caller needs to distinguish.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport-level mapping.
type Kind int

const (
	// Validation marks malformed input (missing required field, non-object
	// extra JSON). Never retried.
	Validation Kind = iota
	// Crypto marks an unreadable vault key or a wrong backup password.
	Crypto
	// Connection marks a driver connect/timeout/query failure. Recoverable.
	Connection
	// Authz marks a permission or grant denial. Responses stay generic so
	// they do not leak whether the resource exists.
	Authz
	// Unsupported marks introspection/execute attempts on a non-SQL engine.
	Unsupported
	// NotFound marks an unknown connection key, username or role.
	NotFound
)

var kindNames = map[Kind]string{
	Validation:  "validation",
	Crypto:      "crypto",
	Connection:  "connection",
	Authz:       "authorization",
	Unsupported: "unsupported",
	NotFound:    "not_found",
}

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", kindNames[e.Kind], e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", kindNames[e.Kind], e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the caller-facing message without the kind prefix.
func (e *Error) Message() string { return e.Msg }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or anything it wraps) is an Error of the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status code the REST surface uses.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Validation, Crypto, Unsupported:
		return http.StatusBadRequest
	case Authz:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Connection:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to send to a client. Authorization
// failures collapse to a generic message regardless of the internal reason.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	if ae.Kind == Authz {
		return "access denied"
	}
	return ae.Msg
}
