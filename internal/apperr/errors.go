package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindAuth                Kind = "auth"
	KindInvalidPin          Kind = "invalid_pin"
	KindForbidden           Kind = "forbidden"
	KindProvider            Kind = "provider"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindTimeout             Kind = "timeout"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidAmount       Kind = "invalid_amount"
	KindWalletMissing       Kind = "wallet_missing"
	KindNoWallet            Kind = "no_wallet"
	KindInternal            Kind = "internal"
)

// Error carries a machine-readable kind and a message that is safe to show
// to API clients. Err holds the underlying cause and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAuth              = &Error{Kind: KindAuth}
	ErrInvalidPin        = &Error{Kind: KindInvalidPin}
	ErrProvider          = &Error{Kind: KindProvider}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrWalletMissing     = &Error{Kind: KindWalletMissing}
	ErrNoWallet          = &Error{Kind: KindNoWallet}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnavailable       = &Error{Kind: KindProviderUnavailable}
)

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// FromUpstream classifies a failed call to an external service. A deadline is
// reported as a timeout because the remote side may already have acted.
func FromUpstream(msg string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return Wrap(KindTimeout, msg+": outcome unknown", err)
	}
	return Wrap(KindProvider, msg, err)
}

type timeout interface {
	Timeout() bool
}

func isNetTimeout(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
