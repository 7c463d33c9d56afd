package redcap

import (
	"fmt"
	"math"
	"strconv"
)

// IsEmptyLiteral reports whether s is the platform's empty value as it
// appears in logic or change definitions: nothing, '' or "".
func IsEmptyLiteral(s string) bool {
	return s == "" || s == "''" || s == `""`
}

// ValuesEqual compares an expected value from a rule with a cell of
// exported data. An empty expected value matches missing cells (nil,
// empty string, NaN). Other values compare as strings, with numbers
// formatted without trailing zeros.
func ValuesEqual(expected string, actual interface{}) bool {
	if IsEmptyLiteral(expected) {
		return isMissing(actual)
	}
	if isMissing(actual) {
		return false
	}
	return cellString(actual) == expected
}

func isMissing(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
