package redcap

import (
	"strings"
)

// IsCheckboxVariable reports whether an export column name is a checkbox
// choice column, e.g. race___1. The column contains "___" and the final
// underscore is the last one of the final "___".
func IsCheckboxVariable(v string) bool {
	i := strings.LastIndex(v, "___")
	if i < 0 {
		return false
	}
	return strings.LastIndexByte(v, '_') == i+2
}

// BaseVariable strips the checkbox choice suffix from an export column name.
// Negative choice codes export with four underscores (race____1 for -1).
// Names that are not checkbox columns are returned unchanged.
func BaseVariable(v string) string {
	if !IsCheckboxVariable(v) {
		return v
	}
	if i := strings.LastIndex(v, "____"); i >= 0 && i == strings.LastIndex(v, "___")-1 {
		return v[:i]
	}
	return v[:strings.LastIndex(v, "___")]
}

// CheckboxColumn returns the export column for a checkbox choice. An empty
// code returns name.
func CheckboxColumn(name, code string) string {
	if code == "" {
		return name
	}
	return name + "___" + strings.ReplaceAll(code, "-", "_")
}
