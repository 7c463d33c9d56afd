package filterlogic

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the category of a filter logic error.
type ErrorCode int

const (
	// ErrEmptyLogic indicates an empty or whitespace-only logic string.
	ErrEmptyLogic ErrorCode = iota + 1
	// ErrSyntax indicates malformed logic.
	ErrSyntax
	// ErrUnknownOperator indicates an operator token outside the operator table.
	ErrUnknownOperator
	// ErrNotComparison indicates an arithmetic operator used where a comparison is required.
	ErrNotComparison
	// ErrUnsupported indicates logic that is valid on the platform but outside
	// the single-field subset handled here (AND/OR, field-to-field comparisons).
	ErrUnsupported
)

func (c ErrorCode) String() string {
	switch c {
	case ErrEmptyLogic:
		return "empty logic"
	case ErrSyntax:
		return "syntax error"
	case ErrUnknownOperator:
		return "unknown operator"
	case ErrNotComparison:
		return "not a comparison"
	case ErrUnsupported:
		return "unsupported logic"
	default:
		return "unknown error"
	}
}

// Error is the structured error returned by Parse.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode
	// Pos is the byte offset in the logic string where the problem was found.
	Pos int
	// Message is a human-readable description.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("filterlogic: %s at offset %d: %s", e.Code, e.Pos, e.Message)
}

func newError(code ErrorCode, pos int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsSyntaxError reports whether err is a malformed-logic error.
func IsSyntaxError(err error) bool { return hasCode(err, ErrSyntax) }

// IsUnsupported reports whether err rejects multi-field logic.
func IsUnsupported(err error) bool { return hasCode(err, ErrUnsupported) }

// IsOperatorError reports whether err was caused by the operator token.
func IsOperatorError(err error) bool {
	return hasCode(err, ErrUnknownOperator) || hasCode(err, ErrNotComparison)
}

// IsEmpty reports whether err was caused by empty logic.
func IsEmpty(err error) bool { return hasCode(err, ErrEmptyLogic) }

// ErrDivisionByZero is returned by Operator.Eval for / // and % with a zero divisor.
var ErrDivisionByZero = errors.New("filterlogic: division by zero")
