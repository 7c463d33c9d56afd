package redcap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCheckboxVariable(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"race___1", true},
		{"race____1", true},
		{"ethnicity___99", true},
		{"race", false},
		{"race__1", false},
		{"my___var_x", false},
		{"first_name", false},
	}
	for _, tt := range tests {
		if got := IsCheckboxVariable(tt.in); got != tt.want {
			t.Errorf("IsCheckboxVariable(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBaseVariable(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"race___1", "race"},
		{"race____1", "race"},
		{"med_list___12", "med_list"},
		{"age", "age"},
		{"my___var_x", "my___var_x"},
	}
	for _, tt := range tests {
		if got := BaseVariable(tt.in); got != tt.want {
			t.Errorf("BaseVariable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckboxColumnRoundTrip(t *testing.T) {
	for _, code := range []string{"1", "12", "-1", "abc"} {
		col := CheckboxColumn("race", code)
		assert.True(t, IsCheckboxVariable(col), col)
		assert.Equal(t, "race", BaseVariable(col), col)
	}
	assert.Equal(t, "race", CheckboxColumn("race", ""))
	assert.Equal(t, "race____1", CheckboxColumn("race", "-1"))
}

func TestDictionary(t *testing.T) {
	d := NewDictionary(map[string][]string{
		"demographics": {"record_id", "age", "race"},
		"enrollment":   {"consent", "enroll_date"},
	})

	assert.Equal(t, 5, d.Len())
	assert.Equal(t, []string{"demographics", "enrollment"}, d.Instruments())
	assert.Equal(t, []string{"consent", "enroll_date"}, d.Fields("enrollment"))
	assert.Empty(t, d.Fields("missing"))

	inst, ok := d.Instrument("age")
	require.True(t, ok)
	assert.Equal(t, "demographics", inst)

	inst, ok = d.Instrument("race___3")
	require.True(t, ok)
	assert.Equal(t, "demographics", inst)

	assert.False(t, d.Has("weight"))
	assert.False(t, d.Has("weight___1"))

	var pairs [][2]string
	d.Pairs(func(i, f string) { pairs = append(pairs, [2]string{i, f}) })
	assert.Len(t, pairs, 5)
	assert.Equal(t, [2]string{"enrollment", "enroll_date"}, pairs[4])
}

func TestFromPairs(t *testing.T) {
	d, err := FromPairs([]string{"b", "a", "b"}, []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, d.Instruments())
	assert.Equal(t, []string{"x", "z"}, d.Fields("b"))

	_, err = FromPairs([]string{"a"}, nil)
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	data := []byte(`[
		{"field_name":"record_id","form_name":"demographics","field_type":"text"},
		{"field_name":"race","form_name":"demographics","field_type":"checkbox"},
		{"field_name":"consent","form_name":"enrollment","field_type":"yesno"}
	]`)
	d, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []string{"demographics", "enrollment"}, d.Instruments())

	_, err = ParseMetadata([]byte(`{"field_name":"x"}`))
	assert.Error(t, err)

	_, err = ParseMetadata([]byte(`[{"field_name":"x"}]`))
	assert.Error(t, err)

	_, err = ParseMetadata([]byte(`[`))
	assert.Error(t, err)
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		expected string
		actual   interface{}
		want     bool
	}{
		{"''", nil, true},
		{"''", "", true},
		{"", math.NaN(), true},
		{`""`, "x", false},
		{"1", "1", true},
		{"1", float64(1), true},
		{"2.5", 2.5, true},
		{"1", int64(1), true},
		{"1", true, true},
		{"1", nil, false},
		{"1", math.NaN(), false},
		{"a", "b", false},
	}
	for _, tt := range tests {
		if got := ValuesEqual(tt.expected, tt.actual); got != tt.want {
			t.Errorf("ValuesEqual(%q, %v) = %v, want %v", tt.expected, tt.actual, got, tt.want)
		}
	}
}
