// Package errs defines the error taxonomy of the trading core. Every failure
// surfaced by the engines carries a Kind so callers can branch on cause, and a
// stable message so tests and API layers can assert on it.
package errs

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Kind classifies an error independent of transport codes
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidAmount
	KindInsufficientFunds
	KindForbidden
	KindInvalidState
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a kinded error with a stable user-visible message
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates a kinded error
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrapf creates a kinded error wrapping an underlying cause
func Wrapf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification
func (e *Error) Kind() Kind { return e.kind }

// Is matches either the exact sentinel or any *Error of the same kind, so
// errors.Is(err, errs.ErrInsufficientFunds) works across wrapping.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.kind == te.kind && (te.msg == "" || te.msg == e.msg)
	}
	return false
}

// KindOf extracts the Kind from an error chain, KindUnknown if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Sentinel errors with the stable messages the engines emit. Comparisons go
// through errors.Is.
var (
	ErrOrderNotFound    = New(KindNotFound, "Order not found")
	ErrTradeNotFound    = New(KindNotFound, "Trade not found")
	ErrWalletNotFound   = New(KindNotFound, "Wallet not found")
	ErrCurrencyNotFound = New(KindNotFound, "Currency not found")

	ErrInvalidAssetCurrency = New(KindConflict, "Invalid asset currency")
	ErrInvalidQuoteCurrency = New(KindConflict, "Invalid quote currency")
	ErrOrderNotAvailable    = New(KindConflict, "Order is not available")
	ErrSelfTrade            = New(KindConflict, "Cannot trade with your own order")
	ErrWalletExists         = New(KindConflict, "Wallet already exists")

	ErrNonPositiveAmount = New(KindInvalidAmount, "Amount must be positive")
	ErrAmountExceedsOpen = New(KindInvalidAmount, "Insufficient amount in order")
	ErrAmountBelowMin    = New(KindInvalidAmount, "Amount below order minimum limit")
	ErrAmountAboveMax    = New(KindInvalidAmount, "Amount above order maximum limit")

	ErrInsufficientFunds  = New(KindInsufficientFunds, "Insufficient balance to cover order + fee")
	ErrInsufficientLocked = New(KindInsufficientFunds, "Insufficient locked balance")

	ErrNotBuyer       = New(KindForbidden, "Only buyer can mark as paid")
	ErrNotSeller      = New(KindForbidden, "Only seller can release")
	ErrNotParticipant = New(KindForbidden, "Not authorized")

	ErrTradeNotPending = New(KindInvalidState, "Invalid trade status")
	ErrTradeNotPaid    = New(KindInvalidState, "Trade must be PAID first")
	ErrTradeFinished   = New(KindInvalidState, "Cannot cancel finished trade")

	ErrLedgerImbalance = New(KindInternal, "ledger entries do not sum to zero")
)
