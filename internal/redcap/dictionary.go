package redcap

import (
	"fmt"
	"sort"

	"github.com/valyala/fastjson"
)

// Dictionary is the field to instrument lookup table of a project.
type Dictionary struct {
	fieldInstrument  map[string]string
	instrumentFields map[string][]string
	instruments      []string // first-seen order
}

// NewDictionary builds the lookup table from an instrument to fields map.
// Instruments are ordered by name. A field listed under several instruments
// maps to the last one in that order.
func NewDictionary(instrumentFields map[string][]string) *Dictionary {
	names := make([]string, 0, len(instrumentFields))
	for name := range instrumentFields {
		names = append(names, name)
	}
	sort.Strings(names)

	d := newDictionary()
	for _, instrument := range names {
		for _, field := range instrumentFields[instrument] {
			d.add(instrument, field)
		}
	}
	return d
}

func newDictionary() *Dictionary {
	return &Dictionary{
		fieldInstrument:  make(map[string]string),
		instrumentFields: make(map[string][]string),
	}
}

func (d *Dictionary) add(instrument, field string) {
	if _, ok := d.instrumentFields[instrument]; !ok {
		d.instruments = append(d.instruments, instrument)
	}
	d.instrumentFields[instrument] = append(d.instrumentFields[instrument], field)
	d.fieldInstrument[field] = instrument
}

// Instrument returns the instrument that owns field. Checkbox choice columns
// resolve through their base variable.
func (d *Dictionary) Instrument(field string) (string, bool) {
	if inst, ok := d.fieldInstrument[field]; ok {
		return inst, true
	}
	inst, ok := d.fieldInstrument[BaseVariable(field)]
	return inst, ok
}

// Has reports whether field (or its checkbox base variable) is known.
func (d *Dictionary) Has(field string) bool {
	_, ok := d.Instrument(field)
	return ok
}

// Fields returns the fields of an instrument in dictionary order.
func (d *Dictionary) Fields(instrument string) []string {
	fields := d.instrumentFields[instrument]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// Instruments returns instrument names in the order they were first seen.
func (d *Dictionary) Instruments() []string {
	out := make([]string, len(d.instruments))
	copy(out, d.instruments)
	return out
}

// Len returns the number of fields.
func (d *Dictionary) Len() int {
	return len(d.fieldInstrument)
}

// Pairs calls fn for every (instrument, field) pair in dictionary order.
func (d *Dictionary) Pairs(fn func(instrument, field string)) {
	for _, inst := range d.instruments {
		for _, f := range d.instrumentFields[inst] {
			fn(inst, f)
		}
	}
}

// FromPairs rebuilds a dictionary from parallel instrument and field columns,
// keeping their order.
func FromPairs(instruments, fields []string) (*Dictionary, error) {
	if len(instruments) != len(fields) {
		return nil, fmt.Errorf("redcap: %d instruments for %d fields", len(instruments), len(fields))
	}
	d := newDictionary()
	for i := range fields {
		d.add(instruments[i], fields[i])
	}
	return d, nil
}

// ParseMetadata builds a dictionary from a metadata export: a JSON array of
// objects carrying at least field_name and form_name.
func ParseMetadata(data []byte) (*Dictionary, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("redcap: invalid metadata JSON: %w", err)
	}

	arr, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("redcap: metadata must be a JSON array: %w", err)
	}

	d := newDictionary()
	for i, item := range arr {
		field := string(item.GetStringBytes("field_name"))
		form := string(item.GetStringBytes("form_name"))
		if field == "" || form == "" {
			return nil, fmt.Errorf("redcap: metadata entry %d lacks field_name or form_name", i)
		}
		d.add(form, field)
	}
	return d, nil
}
