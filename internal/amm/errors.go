// =============================
// File: internal/amm/errors.go
// =============================
package amm

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable numeric identifier of a pool error. Numbering follows
// the Anchor custom error range so codes match the on-chain program logs.
type ErrorCode uint32

const (
	CodePoolLocked ErrorCode = 6000 + iota
	CodeInvalidAmount
	CodeNoLiquidityInPool
	CodeInvalidFee
	CodeOverflow
	CodeSlippageExceeded
	CodeConstraintViolation
	CodeAuthorityMismatch
	CodeUnauthorized
	CodeImmutableConfig
)

// Class groups error codes by how the caller is expected to react.
type Class int

const (
	// ClassPolicy errors are expected and recoverable: retry with other params or later.
	ClassPolicy Class = iota
	// ClassArithmetic errors mean a malformed pool or a pathological input size.
	ClassArithmetic
	// ClassIntegrity errors mean a tampered or malformed account set. Never recovered.
	ClassIntegrity
)

func (c Class) String() string {
	switch c {
	case ClassPolicy:
		return "policy"
	case ClassArithmetic:
		return "arithmetic"
	case ClassIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is a coded pool error.
type Error struct {
	Code  ErrorCode
	Name  string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Name, e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrPoolLocked)
// holds for wrapped copies carrying extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Class reports the error's category.
func (e *Error) Class() Class {
	switch e.Code {
	case CodeInvalidFee, CodeOverflow:
		return ClassArithmetic
	case CodeConstraintViolation, CodeAuthorityMismatch:
		return ClassIntegrity
	default:
		return ClassPolicy
	}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Name: e.Name, Msg: e.Msg, Cause: cause}
}

// Wrapf returns a copy of e with a more specific message.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return &Error{Code: e.Code, Name: e.Name, Msg: fmt.Sprintf(format, args...)}
}

func newError(code ErrorCode, name, msg string) *Error {
	return &Error{Code: code, Name: name, Msg: msg}
}

var (
	ErrPoolLocked          = newError(CodePoolLocked, "PoolLocked", "pool is locked")
	ErrInvalidAmount       = newError(CodeInvalidAmount, "InvalidAmount", "amount must be greater than zero")
	ErrNoLiquidityInPool   = newError(CodeNoLiquidityInPool, "NoLiquidityInPool", "pool has no liquidity")
	ErrInvalidFee          = newError(CodeInvalidFee, "InvalidFee", "fee exceeds 10000 basis points")
	ErrOverflow            = newError(CodeOverflow, "Overflow", "arithmetic overflow")
	ErrSlippageExceeded    = newError(CodeSlippageExceeded, "SlippageExceeded", "output below minimum")
	ErrConstraintViolation = newError(CodeConstraintViolation, "ConstraintViolation", "account constraint violated")
	ErrAuthorityMismatch   = newError(CodeAuthorityMismatch, "AuthorityMismatch", "derived authority does not match")
	ErrUnauthorized        = newError(CodeUnauthorized, "Unauthorized", "signer is not the pool authority")
	ErrImmutableConfig     = newError(CodeImmutableConfig, "ImmutableConfig", "pool has no update authority")
)

// CodeOf extracts the pool error code from err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// NameOf returns the stable error name, or "" for non-pool errors.
func NameOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}

// IsPolicy reports whether err is a caller-recoverable pool error.
func IsPolicy(err error) bool {
	return classIs(err, ClassPolicy)
}

// IsArithmetic reports whether err is an arithmetic fault.
func IsArithmetic(err error) bool {
	return classIs(err, ClassArithmetic)
}

// IsIntegrity reports whether err signals a tampered or malformed account set.
func IsIntegrity(err error) bool {
	return classIs(err, ClassIntegrity)
}

func classIs(err error, c Class) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Class() == c
}
