package metric

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Source is the table and column a metric entity counts over.
type Source struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column" json:"column"`
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s Source) validate() error {
	if !identRE.MatchString(s.Table) {
		return fmt.Errorf("metric: invalid table name %q", s.Table)
	}
	if !identRE.MatchString(s.Column) {
		return fmt.Errorf("metric: invalid column name %q", s.Column)
	}
	return nil
}

// Catalog maps entity names to their sources. The zero value is empty;
// use DefaultCatalog for the built-in entities.
type Catalog struct {
	sources map[string]Source
}

// DefaultCatalog returns a catalog with the patients and studies entities.
func DefaultCatalog() *Catalog {
	return &Catalog{sources: map[string]Source{
		"patients": {Table: "patients", Column: "patient_name"},
		"studies":  {Table: "studies", Column: "study_uid"},
	}}
}

// Add registers or replaces an entity. Entity names are case-insensitive.
func (c *Catalog) Add(entity string, src Source) error {
	entity = strings.ToLower(strings.TrimSpace(entity))
	if entity == "" {
		return ErrEmptyField
	}
	if err := src.validate(); err != nil {
		return err
	}
	if c.sources == nil {
		c.sources = make(map[string]Source)
	}
	c.sources[entity] = src
	return nil
}

// Lookup returns the source of an entity.
func (c *Catalog) Lookup(entity string) (Source, bool) {
	src, ok := c.sources[strings.ToLower(strings.TrimSpace(entity))]
	return src, ok
}

// Entities returns the known entity names, sorted.
func (c *Catalog) Entities() []string {
	out := make([]string, 0, len(c.sources))
	for name := range c.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of c.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{sources: make(map[string]Source, len(c.sources))}
	for k, v := range c.sources {
		out.sources[k] = v
	}
	return out
}
