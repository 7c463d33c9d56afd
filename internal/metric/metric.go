// Package metric turns aggregate metric definitions (an action over one or
// two entities) into SQL queries.
package metric

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SnellerInc/sneller/expr"
	_ "github.com/SnellerInc/sneller/expr/partiql" // quote keyword identifiers
)

// Action is the aggregate a metric computes.
type Action string

const (
	ActionSum      Action = "SUM"
	ActionDistinct Action = "DISTINCT"
	ActionRatio    Action = "RATIO"
)

var (
	ErrEmptyField       = errors.New("metric: first field must not be empty")
	ErrMissingSecond    = errors.New("metric: RATIO requires a second field")
	ErrUnexpectedSecond = errors.New("metric: second field is only allowed with RATIO")
	ErrUnknownAction    = errors.New("metric: unknown action")
	ErrUnknownEntity    = errors.New("metric: unknown entity")
)

// ParseAction resolves an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionSum, ActionDistinct, ActionRatio:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Metric is a validated metric definition.
type Metric struct {
	Action Action
	First  string
	Second string

	first  Source
	second Source
}

// New validates a metric against the default catalog.
func New(action, first, second string) (*Metric, error) {
	return DefaultCatalog().New(action, first, second)
}

// New validates a metric against c. Checks run in order: empty first
// field, unknown action, RATIO arity, then entity lookup.
func (c *Catalog) New(action, first, second string) (*Metric, error) {
	first = strings.TrimSpace(first)
	second = strings.TrimSpace(second)
	if first == "" {
		return nil, ErrEmptyField
	}
	act, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	if act == ActionRatio && second == "" {
		return nil, ErrMissingSecond
	}
	if act != ActionRatio && second != "" {
		return nil, ErrUnexpectedSecond
	}

	m := &Metric{Action: act, First: strings.ToLower(first)}
	src, ok := c.Lookup(first)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, first)
	}
	m.first = src
	if act == ActionRatio {
		src, ok := c.Lookup(second)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, second)
		}
		m.Second = strings.ToLower(second)
		m.second = src
	}
	return m, nil
}

func countOf(src Source, distinct bool) *expr.Select {
	var agg *expr.Aggregate
	if distinct {
		agg = expr.CountDistinct(expr.Identifier(src.Column))
	} else {
		agg = expr.Count(expr.Identifier(src.Column))
	}
	return &expr.Select{
		Columns: []expr.Binding{expr.Bind(agg, "")},
		From:    &expr.Table{Binding: expr.Bind(expr.Identifier(src.Table), "")},
	}
}

func (m *Metric) selectNode() *expr.Select {
	switch m.Action {
	case ActionDistinct:
		return countOf(m.first, true)
	case ActionRatio:
		ratio := &expr.Arithmetic{
			Op:    expr.DivOp,
			Left:  countOf(m.first, true),
			Right: countOf(m.second, true),
		}
		return &expr.Select{Columns: []expr.Binding{expr.Bind(ratio, "ratio")}}
	default:
		return countOf(m.first, false)
	}
}

// Query returns the metric as a query tree.
func (m *Metric) Query() *expr.Query {
	return &expr.Query{Body: m.selectNode()}
}

// SQL returns the query text.
func (m *Metric) SQL() string {
	return m.selectNode().Text()
}

// Sources returns the tables and columns the metric reads.
func (m *Metric) Sources() []Source {
	if m.Action == ActionRatio {
		return []Source{m.first, m.second}
	}
	return []Source{m.first}
}

func (m *Metric) String() string {
	if m.Second != "" {
		return fmt.Sprintf("%s(%s, %s)", m.Action, m.First, m.Second)
	}
	return fmt.Sprintf("%s(%s)", m.Action, m.First)
}

func (m *Metric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action Action `json:"action"`
		First  string `json:"first"`
		Second string `json:"second,omitempty"`
		SQL    string `json:"sql"`
	}{m.Action, m.First, m.Second, m.SQL()})
}
