package filterlogic

import (
	"math"
	"strings"

	"github.com/SnellerInc/sneller/expr"
	_ "github.com/SnellerInc/sneller/expr/partiql" // quote keyword columns

	"github.com/coffersTech/redlogic/internal/redcap"
)

// FieldRef is a bracketed variable reference: [field], [event][field]
// or, for a checkbox choice, [field(code)].
type FieldRef struct {
	Event string `json:"event,omitempty" yaml:"event,omitempty"`
	Name  string `json:"name" yaml:"name"`
	Code  string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Column returns the export column the reference points at.
func (f FieldRef) Column() string {
	return redcap.CheckboxColumn(f.Name, f.Code)
}

func (f FieldRef) String() string {
	var sb strings.Builder
	if f.Event != "" {
		sb.WriteString("[" + f.Event + "]")
	}
	sb.WriteString("[" + f.Name)
	if f.Code != "" {
		sb.WriteString("(" + f.Code + ")")
	}
	sb.WriteString("]")
	return sb.String()
}

// ValueKind classifies the right-hand side of a condition.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueEmpty
)

func (k ValueKind) String() string {
	switch k {
	case ValueNumber:
		return "number"
	case ValueEmpty:
		return "empty"
	default:
		return "string"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ValueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Value is the literal a field is compared against.
type Value struct {
	Kind ValueKind `json:"kind"`
	Raw  string    `json:"raw"`  // as written, quotes included
	Text string    `json:"text"` // unquoted
	Num  float64   `json:"num,omitempty"`
}

// IsEmpty reports whether the value is the platform's empty literal ('' or "").
func (v Value) IsEmpty() bool {
	return v.Kind == ValueEmpty
}

// Literal returns the value as a sneller literal node.
func (v Value) Literal() expr.Node {
	switch v.Kind {
	case ValueNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return expr.Integer(int64(v.Num))
		}
		return expr.Float(v.Num)
	default:
		return expr.String(v.Text)
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return v.Raw
	case ValueEmpty:
		return "''"
	default:
		return "'" + quoteEscaper.Replace(v.Text) + "'"
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

// Condition is a parsed single-field filter logic expression.
type Condition struct {
	Raw   string   `json:"raw"`
	Field FieldRef `json:"field"`
	Op    Operator `json:"operator"`
	Value Value    `json:"value"`
}

// Column returns the export column the condition tests.
func (c *Condition) Column() string {
	return c.Field.Column()
}

// Expr returns the condition as a sneller comparison node, suitable for a
// WHERE clause over exported records.
func (c *Condition) Expr() expr.Node {
	return expr.Compare(cmpOp(c.Op), expr.Identifier(c.Column()), c.Value.Literal())
}

// Test applies the condition's operator to a cell value.
func (c *Condition) Test(cell string) (bool, error) {
	return c.Op.Compare(cell, c.Value.Text)
}

// String returns the condition in canonical filter logic form.
func (c *Condition) String() string {
	return c.Field.String() + " " + c.Op.String() + " " + c.Value.String()
}

func cmpOp(op Operator) expr.CmpOp {
	switch op {
	case OpNe:
		return expr.NotEquals
	case OpGt:
		return expr.Greater
	case OpLt:
		return expr.Less
	case OpGe:
		return expr.GreaterEquals
	case OpLe:
		return expr.LessEquals
	default:
		return expr.Equals
	}
}
