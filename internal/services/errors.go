package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a ledger failure. Handlers map
// kinds to HTTP status codes.
type ErrorKind string

const (
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindDailyCapExceeded    ErrorKind = "daily_cap_exceeded"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidState        ErrorKind = "invalid_state"
	KindWindowClosed        ErrorKind = "window_closed"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindExternalProvider    ErrorKind = "external_provider_error"
	KindConflict            ErrorKind = "conflict"
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindInvalidSplit        ErrorKind = "invalid_split"
)

// LedgerError is returned by every public service operation that fails for a
// reason the caller can act on. Message is safe to show to end users; Err, if
// set, is the underlying cause and is only logged.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches any LedgerError of the same kind, so callers can write
// errors.Is(err, services.ErrNotFound).
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInsufficientBalance = &LedgerError{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrDailyCapExceeded    = &LedgerError{Kind: KindDailyCapExceeded, Message: "daily spending cap reached"}
	ErrNotFound            = &LedgerError{Kind: KindNotFound, Message: "not found"}
	ErrInvalidState        = &LedgerError{Kind: KindInvalidState, Message: "invalid state"}
	ErrWindowClosed        = &LedgerError{Kind: KindWindowClosed, Message: "refund window has closed"}
	ErrUnauthorized        = &LedgerError{Kind: KindUnauthorized, Message: "not authorized"}
	ErrExternalProvider    = &LedgerError{Kind: KindExternalProvider, Message: "payment provider error"}
	ErrConflict            = &LedgerError{Kind: KindConflict, Message: "conflict"}
	ErrInvalidAmount       = &LedgerError{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrInvalidSplit        = &LedgerError{Kind: KindInvalidSplit, Message: "invalid split"}
)

func newError(kind ErrorKind, message string, cause error) *LedgerError {
	return &LedgerError{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first LedgerError in err's chain, or "" when
// err is not a ledger failure.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// UserMessage returns the client-safe message for err.
func UserMessage(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Message
	}
	return "internal server error"
}
