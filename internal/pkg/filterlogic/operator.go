package filterlogic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is one entry of the platform's operator table.
type Operator int

const (
	OpInvalid Operator = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpEq
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
)

var operatorTokens = map[string]Operator{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"//": OpFloorDiv,
	"%":  OpMod,
	"**": OpPow,
	"=":  OpEq,
	"<>": OpNe,
	"!=": OpNe,
	">":  OpGt,
	"<":  OpLt,
	">=": OpGe,
	"<=": OpLe,
}

// LookupOperator returns the operator for tok, ignoring surrounding whitespace.
func LookupOperator(tok string) (Operator, bool) {
	op, ok := operatorTokens[strings.TrimSpace(tok)]
	return op, ok
}

// String returns the canonical token. "!=" prints as "<>".
func (op Operator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpFloorDiv:
		return "//"
	case OpMod:
		return "%"
	case OpPow:
		return "**"
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGe:
		return ">="
	case OpLe:
		return "<="
	default:
		return "<invalid>"
	}
}

// IsComparison reports whether op yields a boolean.
func (op Operator) IsComparison() bool {
	return op >= OpEq && op <= OpLe
}

// IsArithmetic reports whether op yields a number.
func (op Operator) IsArithmetic() bool {
	return op >= OpAdd && op <= OpPow
}

// MarshalText implements encoding.TextMarshaler.
func (op Operator) MarshalText() ([]byte, error) {
	if op == OpInvalid {
		return nil, fmt.Errorf("filterlogic: cannot marshal invalid operator")
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operator) UnmarshalText(b []byte) error {
	v, ok := LookupOperator(string(b))
	if !ok {
		return fmt.Errorf("filterlogic: unknown operator %q", string(b))
	}
	*op = v
	return nil
}

// Compare applies a comparison operator. Both operands are compared as
// numbers when both parse as numbers, and as strings otherwise.
func (op Operator) Compare(left, right string) (bool, error) {
	if !op.IsComparison() {
		return false, fmt.Errorf("filterlogic: %s is not a comparison operator", op)
	}

	var c int
	lf, lerr := strconv.ParseFloat(strings.TrimSpace(left), 64)
	rf, rerr := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			c = -1
		case lf > rf:
			c = 1
		}
	} else {
		c = strings.Compare(left, right)
	}

	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpGt:
		return c > 0, nil
	case OpLt:
		return c < 0, nil
	case OpGe:
		return c >= 0, nil
	default: // OpLe
		return c <= 0, nil
	}
}

// Eval applies an arithmetic operator. // floors the quotient and % takes
// the sign of the divisor.
func (op Operator) Eval(left, right float64) (float64, error) {
	switch op {
	case OpAdd:
		return left + right, nil
	case OpSub:
		return left - right, nil
	case OpMul:
		return left * right, nil
	case OpDiv:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return left / right, nil
	case OpFloorDiv:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Floor(left / right), nil
	case OpMod:
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		r := math.Mod(left, right)
		if r != 0 && (r < 0) != (right < 0) {
			r += right
		}
		return r, nil
	case OpPow:
		return math.Pow(left, right), nil
	default:
		return 0, fmt.Errorf("filterlogic: %s is not an arithmetic operator", op)
	}
}
