// Package apperror defines the error taxonomy shared by services, the HTTP
// boundary and background task handlers.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindRateLimited      Kind = "rate_limited"
	KindPaymentGateway   Kind = "payment_gateway_error"
	KindUnavailable      Kind = "service_unavailable"
	KindTicketGeneration Kind = "ticket_generation_error"
)

// Error is a classified error. Code is a stable machine-readable identifier,
// Message is safe to show to clients. Err is the cause and is never rendered.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Field      string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind and code, so a sentinel matches
// copies that carry a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// WithCause returns a copy of e carrying err as its cause.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

func Validation(code, field, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

var (
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: "unauthorized"}
	ErrForbidden          = &Error{Kind: KindForbidden, Code: "forbidden", Message: "forbidden"}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Code: "rate_limited", Message: "too many attempts, try again later"}
	ErrPaymentGateway     = &Error{Kind: KindPaymentGateway, Code: "payment_gateway_error", Message: "payment provider temporarily unavailable"}
	ErrServiceUnavailable = &Error{Kind: KindUnavailable, Code: "service_unavailable", Message: "service temporarily unavailable"}
	ErrTicketGeneration   = &Error{Kind: KindTicketGeneration, Code: "ticket_generation_error", Message: "ticket generation failed"}
)

func PaymentGateway(cause error) error {
	return ErrPaymentGateway.WithCause(cause)
}

func Unavailable(cause error) error {
	return ErrServiceUnavailable.WithCause(cause)
}

func TicketGeneration(cause error) error {
	return ErrTicketGeneration.WithCause(cause)
}

func RateLimited(retryAfter time.Duration) error {
	cp := *ErrRateLimited
	cp.RetryAfter = retryAfter
	return &cp
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether retrying err cannot succeed. Transient
// failures such as network errors or unavailable stores are not permanent.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindUnauthorized, KindForbidden, KindTicketGeneration:
		return true
	default:
		return false
	}
}
