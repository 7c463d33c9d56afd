package metric

import (
	"encoding/json"
	"testing"

	"github.com/SnellerInc/sneller/expr"
	"github.com/SnellerInc/sneller/expr/partiql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationOrder(t *testing.T) {
	tests := []struct {
		name                  string
		action, first, second string
		want                  error
	}{
		{"empty first wins", "BOGUS", "", "studies", ErrEmptyField},
		{"unknown action", "MEDIAN", "patients", "", ErrUnknownAction},
		{"ratio needs second", "RATIO", "patients", "", ErrMissingSecond},
		{"second only for ratio", "SUM", "patients", "studies", ErrUnexpectedSecond},
		{"distinct with second", "DISTINCT", "patients", "studies", ErrUnexpectedSecond},
		{"unknown first entity", "DISTINCT", "visits", "", ErrUnknownEntity},
		{"unknown second entity", "RATIO", "patients", "visits", ErrUnknownEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.action, tt.first, tt.second)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMetricSQL(t *testing.T) {
	tests := []struct {
		action, first, second string
		want                  string
	}{
		{"DISTINCT", "patients", "", "SELECT COUNT(DISTINCT patient_name) FROM patients"},
		{"distinct", "Studies", "", "SELECT COUNT(DISTINCT study_uid) FROM studies"},
		{"SUM", "patients", "", "SELECT COUNT(patient_name) FROM patients"},
		{"RATIO", "patients", "studies", "SELECT (SELECT COUNT(DISTINCT patient_name) FROM patients) / (SELECT COUNT(DISTINCT study_uid) FROM studies) AS ratio"},
	}
	for _, tt := range tests {
		m, err := New(tt.action, tt.first, tt.second)
		require.NoError(t, err)
		assert.Equal(t, tt.want, m.SQL())
	}
}

func TestMetricQueryTree(t *testing.T) {
	m, err := New("RATIO", "patients", "studies")
	require.NoError(t, err)

	count := func(table, column string) *expr.Select {
		return &expr.Select{
			Columns: []expr.Binding{expr.Bind(expr.CountDistinct(expr.Identifier(column)), "")},
			From:    &expr.Table{Binding: expr.Bind(expr.Identifier(table), "")},
		}
	}
	want := &expr.Select{Columns: []expr.Binding{expr.Bind(&expr.Arithmetic{
		Op:    expr.DivOp,
		Left:  count("patients", "patient_name"),
		Right: count("studies", "study_uid"),
	}, "ratio")}}

	got := m.Query().Body
	assert.True(t, got.Equals(want), "got %s", expr.ToString(got))
	assert.Equal(t, []Source{{"patients", "patient_name"}, {"studies", "study_uid"}}, m.Sources())
}

func TestMetricSQLParses(t *testing.T) {
	for _, spec := range []string{"SUM patients", "DISTINCT studies"} {
		m, err := ParseSpec(spec)
		require.NoError(t, err)
		_, err = partiql.Parse([]byte(m.SQL()))
		assert.NoError(t, err, m.SQL())
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DISTINCT patients", "DISTINCT(patients)"},
		{"sum(patients)", "SUM(patients)"},
		{"RATIO patients studies", "RATIO(patients, studies)"},
		{"RATIO patients, studies", "RATIO(patients, studies)"},
		{" RATIO ( patients , studies ) ", "RATIO(patients, studies)"},
	}
	for _, tt := range tests {
		m, err := ParseSpec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, m.String())
	}

	for in, want := range map[string]error{
		"":                        ErrInvalidSpec,
		"(patients)":              ErrInvalidSpec,
		"RATIO(patients, studies": ErrInvalidSpec,
		"RATIO patients,,studies": ErrInvalidSpec,
		"RATIO patients,":         ErrInvalidSpec,
		"RATIO a b c":             ErrInvalidSpec,
		"SUM patients; DROP":      ErrInvalidSpec,
		"DISTINCT":                ErrEmptyField,
		"RATIO(patients)":         ErrMissingSecond,
		"SUM(patients, studies)":  ErrUnexpectedSecond,
		"AVG patients":            ErrUnknownAction,
		"DISTINCT(sessions)":      ErrUnknownEntity,
	} {
		_, err := ParseSpec(in)
		assert.ErrorIs(t, err, want, "%q", in)
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog().Clone()
	require.NoError(t, c.Add("Visits", Source{Table: "visits", Column: "visit_id"}))
	assert.Equal(t, []string{"patients", "studies", "visits"}, c.Entities())
	assert.Equal(t, []string{"patients", "studies"}, DefaultCatalog().Entities())

	m, err := c.New("DISTINCT", "visits", "")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT visit_id) FROM visits", m.SQL())

	require.NoError(t, c.Add("orders", Source{Table: "order", Column: "select"}))
	m, err = c.New("SUM", "orders", "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT("select") FROM "order"`, m.SQL())

	assert.Error(t, c.Add("bad", Source{Table: "t; drop", Column: "c"}))
	assert.Error(t, c.Add("bad", Source{Table: "t", Column: ""}))
	assert.ErrorIs(t, c.Add(" ", Source{Table: "t", Column: "c"}), ErrEmptyField)

	var empty Catalog
	_, err = empty.New("SUM", "patients", "")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestMetricJSON(t *testing.T) {
	m, err := New("DISTINCT", "patients", "")
	require.NoError(t, err)
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"DISTINCT","first":"patients","sql":"SELECT COUNT(DISTINCT patient_name) FROM patients"}`, string(b))
}
