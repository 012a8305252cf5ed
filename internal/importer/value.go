package importer

import (
	"strconv"
	"strings"
	"time"
)

// ValueKind is the type tag of a converted field value.
type ValueKind string

const (
	ValueText      ValueKind = "text"
	ValueNumber    ValueKind = "number"
	ValueDate      ValueKind = "date"
	ValueList      ValueKind = "list"
	ValueReference ValueKind = "reference"
)

// Value is a typed field value. The zero Value means "no value".
type Value struct {
	Kind   ValueKind `json:"kind,omitempty"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	Date   time.Time `json:"date,omitempty"`
	List   []string  `json:"list,omitempty"`
	// Ref is the resolved foreign id of a reference value.
	Ref string `json:"ref,omitempty"`
}

func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }
func ListValue(items []string) Value { return Value{Kind: ValueList, List: items} }

func DateValue(t time.Time) Value {
	return Value{Kind: ValueDate, Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func ReferenceValue(name, id string) Value {
	return Value{Kind: ValueReference, Text: name, Ref: id}
}

func (v Value) IsZero() bool {
	return v.Kind == ""
}

// String is the comparison form used by the diff engine.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueDate:
		if v.Date.IsZero() {
			return ""
		}
		return v.Date.Format(DateLayout)
	case ValueList:
		return strings.Join(v.List, ",")
	}
	return v.Text
}

// ShipmentFields is the typed form of one spreadsheet row. Absent keys mean
// the row supplied no usable value for that field.
type ShipmentFields map[FieldKey]Value

func (f ShipmentFields) Get(key FieldKey) (Value, bool) {
	v, ok := f[key]
	return v, ok
}

func (f ShipmentFields) Has(key FieldKey) bool {
	_, ok := f[key]
	return ok
}

// Text returns the string form of a field, or "" when absent.
func (f ShipmentFields) Text(key FieldKey) string {
	return f[key].String()
}
