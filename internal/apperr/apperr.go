// Package apperr defines the error kinds surfaced by the job board services.
// Every failure that crosses a service boundary carries a Kind so transports
// can map it to a status without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindUnauthenticated      Kind = "unauthenticated"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindDuplicateApplication Kind = "duplicate_application"
	KindUnsupportedType      Kind = "unsupported_type"
	KindTooLarge             Kind = "too_large"
	KindRateLimited          Kind = "rate_limited"
	KindInternal             Kind = "internal_error"
)

// Error is a classified failure. Reason is an optional stable sub-code
// (for example "token_expired") that lets clients act on the failure.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind. The original error stays reachable via errors.Is/As.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithReason returns a copy of e carrying the given reason.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason attached to err, if any.
func ReasonOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func InvalidRequest(msg string) *Error { return New(KindInvalidRequest, msg) }
func Forbidden(msg string) *Error      { return New(KindForbidden, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }

// Internal wraps a storage or filesystem failure that has no better classification.
func Internal(err error, msg string) *Error { return Wrap(KindInternal, err, msg) }
