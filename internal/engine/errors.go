package engine

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was declined.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindUnknownSymbol
	KindQuoteUnavailable
	KindInsufficientFunds
	KindNoSuchHolding
	KindInvalidShareCount
	KindNoSuchAccount
	KindAccountExists
	KindStoreFailure
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindInvalidInput:      "invalid_input",
	KindUnknownSymbol:     "unknown_symbol",
	KindQuoteUnavailable:  "quote_unavailable",
	KindInsufficientFunds: "insufficient_funds",
	KindNoSuchHolding:     "no_such_holding",
	KindInvalidShareCount: "invalid_share_count",
	KindNoSuchAccount:     "no_such_account",
	KindAccountExists:     "account_exists",
	KindStoreFailure:      "store_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether retrying the same request may succeed.
func (k Kind) Transient() bool {
	return k == KindStoreFailure || k == KindQuoteUnavailable
}

// matches reports whether an error of kind k satisfies target.
// A missing account is also an invalid input.
func (k Kind) matches(target Kind) bool {
	return k == target || (k == KindNoSuchAccount && target == KindInvalidInput)
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrUnknownSymbol     = &Error{Kind: KindUnknownSymbol}
	ErrQuoteUnavailable  = &Error{Kind: KindQuoteUnavailable}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrNoSuchHolding     = &Error{Kind: KindNoSuchHolding}
	ErrInvalidShareCount = &Error{Kind: KindInvalidShareCount}
	ErrNoSuchAccount     = &Error{Kind: KindNoSuchAccount}
	ErrAccountExists     = &Error{Kind: KindAccountExists}
	ErrStoreFailure      = &Error{Kind: KindStoreFailure}
)

// Error is a declined operation with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Reason != "" || t.Err != nil {
		return false
	}
	return e.Kind.matches(t.Kind)
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, KindUnknown if it is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
