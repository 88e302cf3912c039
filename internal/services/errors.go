package services

import (
	"errors"
	"fmt"

	"github.com/teddyfriends/loyalty/internal/models"
)

// Kind classifies a failed operation. Everything except KindInternal is an
// expected business outcome that left no state behind.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindExpired          Kind = "expired"
	KindRateLimited      Kind = "rate_limited"
	KindInvalidSignature Kind = "invalid_signature"
	KindInvalidRequest   Kind = "invalid_request"
	KindConsentRequired  Kind = "consent_required"
	KindInternal         Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	// Status is the voucher's current status on a non-active conflict.
	Status  models.VoucherStatus
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrExpired) works
// whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrConsentRequired  = &Error{Kind: KindConsentRequired}
	ErrInternal         = &Error{Kind: KindInternal}
)

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func expired(format string, args ...any) *Error {
	return &Error{Kind: KindExpired, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// internal wraps a storage failure; typed errors pass through untouched.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// KindOf returns the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
