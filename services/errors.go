// services/errors.go
package services

import (
	"errors"
	"fmt"
)

// Kind groups service errors by how the HTTP layer should answer them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindDomain
	KindGateway
	KindSignature
)

// Error is the typed failure every service operation returns. Two errors are
// considered the same (errors.Is) when their codes match, so callers can test
// against the sentinels below regardless of the message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error returns the client-facing message. Wrapped causes are already part of it.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrValidation          = &Error{Kind: KindValidation, Code: "VALIDATION", Message: "Invalid request"}
	ErrForbidden           = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "Forbidden"}
	ErrEventNotFound       = &Error{Kind: KindNotFound, Code: "EVENT_NOT_FOUND", Message: "Event not found"}
	ErrTicketNotFound      = &Error{Kind: KindNotFound, Code: "TICKET_NOT_FOUND", Message: "Ticket not found"}
	ErrCategoryNotFound    = &Error{Kind: KindNotFound, Code: "CATEGORY_NOT_FOUND", Message: "Category not found"}
	ErrRegistrationMissing = &Error{Kind: KindNotFound, Code: "REGISTRATION_NOT_FOUND", Message: "Registration not found"}
	ErrUserNotFound        = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "User not found"}
	ErrRegistrationClosed  = &Error{Kind: KindDomain, Code: "REGISTRATION_CLOSED", Message: "Registration is not open for this event"}
	ErrCapacityExceeded    = &Error{Kind: KindDomain, Code: "CAPACITY_EXCEEDED", Message: "Not enough capacity"}
	ErrAlreadyPaid         = &Error{Kind: KindDomain, Code: "ALREADY_PAID", Message: "Registration is already paid"}
	ErrInvalidTransition   = &Error{Kind: KindDomain, Code: "INVALID_STATUS_TRANSITION", Message: "Invalid status transition"}
	ErrTicketInUse         = &Error{Kind: KindDomain, Code: "TICKET_IN_USE", Message: "Ticket has attendees"}
	ErrGateway             = &Error{Kind: KindGateway, Code: "GATEWAY_ERROR", Message: "Payment gateway error"}
	ErrInvalidSignature    = &Error{Kind: KindSignature, Code: "INVALID_SIGNATURE", Message: "Invalid signature"}
)

// withMessage copies a sentinel with a more specific message.
func withMessage(base *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// wrap copies a sentinel and appends the cause to its message.
func wrap(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message + ": " + err.Error(), Err: err}
}

// wrapf is wrap with a specific message in front of the cause.
func wrapf(base *Error, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

// KindOf reports the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
