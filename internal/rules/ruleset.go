// Package rules loads conditional change rules: a filter-logic condition
// and the field changes to apply to records that meet it.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/redlogic/internal/redcap"
)

// RuleSet is a named list of filters.
type RuleSet struct {
	Name    string
	Source  string // file the rules were loaded from, if any
	Filters []*Filter
}

type document struct {
	Name  string    `yaml:"name"`
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Condition string   `yaml:"condition"`
	Changes   []Change `yaml:"changes"`
}

// Parse decodes a YAML rule document.
func Parse(data []byte) (*RuleSet, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}

	rs := &RuleSet{Name: strings.TrimSpace(doc.Name)}
	for i, r := range doc.Rules {
		for j, c := range r.Changes {
			if strings.TrimSpace(c.Field) == "" {
				return nil, fmt.Errorf("rules: rule %d: change %d has no field", i, j)
			}
		}
		f, err := NewFilter(r.Condition, r.Changes...)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %d: %w", i, err)
		}
		rs.Filters = append(rs.Filters, f)
	}
	return rs, nil
}

// LoadFile reads and parses a rule file. Files ending in .zst are
// zstd-compressed. A rule set without a name takes the file's base name.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("rules: %s: %w", path, err)
		}
		name = strings.TrimSuffix(name, ".zst")
	}

	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if rs.Name == "" {
		rs.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	rs.Source = path
	return rs, nil
}

// Validate checks every condition and change field against the project
// dictionary and reports all unknown fields.
func (rs *RuleSet) Validate(dict *redcap.Dictionary) error {
	var errs []error
	for i, f := range rs.Filters {
		if col := f.Field(); !dict.Has(col) {
			errs = append(errs, fmt.Errorf("rule %d: condition field %q is not in the dictionary", i, col))
		}
		for _, c := range f.Changes {
			if !dict.Has(c.Field) {
				errs = append(errs, fmt.Errorf("rule %d: change field %q is not in the dictionary", i, c.Field))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("rules: %s: %w", rs.Name, errors.Join(errs...))
	}
	return nil
}

// Clone returns a deep copy of rs.
func (rs *RuleSet) Clone() *RuleSet {
	out := &RuleSet{Name: rs.Name, Source: rs.Source, Filters: make([]*Filter, len(rs.Filters))}
	for i, f := range rs.Filters {
		out.Filters[i] = f.clone()
	}
	return out
}

// Fields returns the distinct fields the rule set reads or writes, in
// first-seen order.
func (rs *RuleSet) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, f := range rs.Filters {
		add(f.Field())
		for _, c := range f.Changes {
			add(c.Field)
		}
	}
	return out
}

// MarshalYAML writes the rule set back in document form.
func (rs *RuleSet) MarshalYAML() (interface{}, error) {
	doc := document{Name: rs.Name}
	for _, f := range rs.Filters {
		doc.Rules = append(doc.Rules, ruleDoc{Condition: f.Condition.String(), Changes: f.Changes})
	}
	return doc, nil
}
