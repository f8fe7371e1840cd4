package numalloc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Code classifies the failures an operation can report. An operation that
// affects zero items is a successful, empty result and carries no Code.
type Code int

const (
	CodeUnknown Code = iota
	// CodeStoreUnavailable means the store or its transaction machinery failed.
	CodeStoreUnavailable
	// CodeInvalidInput means malformed numbers, counts or configuration.
	CodeInvalidInput
	// CodeOperationTimeout means the unit of work ran out of time or was
	// canceled and was rolled back.
	CodeOperationTimeout
	// CodeResetDisabled means Reset was called on an engine that does not
	// allow it.
	CodeResetDisabled
	// CodeInvalidState means the store returned a row that breaks the item
	// invariants, such as an unknown state label.
	CodeInvalidState
)

func (c Code) String() string {
	switch c {
	case CodeStoreUnavailable:
		return "StoreUnavailable"
	case CodeInvalidInput:
		return "InvalidInput"
	case CodeOperationTimeout:
		return "OperationTimeout"
	case CodeResetDisabled:
		return "ResetDisabled"
	case CodeInvalidState:
		return "InvalidState"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every Engine operation.
type Error struct {
	Code    Code   // Machine-readable classification
	Op      string // Operation that failed, e.g. "Claim"
	Message string // Human-readable description
	Cause   error  // Underlying error, if any
}

// Sentinel errors for use with errors.Is. They match any *Error of the same
// Code.
var (
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	ErrInvalidInput     = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrOperationTimeout = &Error{Code: CodeOperationTimeout, Message: "operation timed out"}
	ErrResetDisabled    = &Error{Code: CodeResetDisabled, Message: "reset is disabled"}
	ErrInvalidState     = &Error{Code: CodeInvalidState, Message: "invalid item state"}
)

func newError(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return "numalloc: " + msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf returns the Code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// classify turns an error escaping a unit of work into an *Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			withOp := *e
			withOp.Op = op
			return &withOp
		}
		return e
	}
	if errors.Is(err, context.Canceled) {
		return newError(CodeOperationTimeout, op, "operation canceled", err)
	}
	if isTimeout(err) {
		return newError(CodeOperationTimeout, op, "operation timed out", err)
	}
	return newError(CodeStoreUnavailable, op, "store unavailable", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", // lock_not_available
			"57014": // query_canceled, raised by statement_timeout
			return true
		}
	}
	return false
}

// invalidInputf reports malformed caller input for op.
func invalidInputf(op, format string, args ...any) error {
	return newError(CodeInvalidInput, op, fmt.Sprintf(format, args...), nil)
}
