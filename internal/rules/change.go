package rules

import (
	"fmt"

	"github.com/coffersTech/redlogic/internal/redcap"
)

// Change is a field's name, its old value and its new value.
type Change struct {
	Field string `yaml:"field" json:"field"`
	Old   string `yaml:"old" json:"old"`
	New   string `yaml:"new" json:"new"`
}

// Applies reports whether cell holds the change's old value. Empty old
// values match missing cells.
func (c Change) Applies(cell interface{}) bool {
	return redcap.ValuesEqual(c.Old, cell)
}

func (c Change) String() string {
	return fmt.Sprintf("%s: %q -> %q", c.Field, c.Old, c.New)
}
