package rules

import (
	"github.com/coffersTech/redlogic/internal/pkg/filterlogic"
)

// Filter is a parsed condition and the changes that follow it.
type Filter struct {
	Condition *filterlogic.Condition
	Changes   []Change
}

// NewFilter parses logic and attaches changes.
func NewFilter(logic string, changes ...Change) (*Filter, error) {
	cond, err := filterlogic.Parse(logic)
	if err != nil {
		return nil, err
	}
	return &Filter{Condition: cond, Changes: changes}, nil
}

// Field returns the export column the condition tests.
func (f *Filter) Field() string { return f.Condition.Column() }

func (f *Filter) Operator() filterlogic.Operator { return f.Condition.Op }

func (f *Filter) Value() filterlogic.Value { return f.Condition.Value }

// Logic returns the condition as written.
func (f *Filter) Logic() string { return f.Condition.Raw }

func (f *Filter) clone() *Filter {
	cond := *f.Condition
	changes := make([]Change, len(f.Changes))
	copy(changes, f.Changes)
	return &Filter{Condition: &cond, Changes: changes}
}
