package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/width"
)

// ParseWarning records a cell that could not be interpreted for its field.
// The field is treated as absent for that row.
type ParseWarning struct {
	Row    int      `json:"row"`
	Field  FieldKey `json:"field"`
	Raw    string   `json:"raw"`
	Reason string   `json:"reason"`
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("row %d, field %s: %s (%q)", w.Row, w.Field, w.Reason, w.Raw)
}

var errNoValue = errors.New("no value")

var dateLayouts = []string{
	"2006-01-02",
	"2006/1/2",
	"2006-1-2",
	"2006.1.2",
	"2006-01-02 15:04:05",
	"2006/1/2 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006年1月2日",
}

// Extract converts row into typed fields. This is the only place untyped
// cells are read.
func (t *AliasTable) Extract(row RawRow) (ShipmentFields, []ParseWarning) {
	fields := make(ShipmentFields)
	var warnings []ParseWarning
	for _, meta := range fieldTable {
		cell, ok := t.Resolve(row, meta.Key)
		if !ok {
			continue
		}
		v, err := convertCell(meta, cell)
		if errors.Is(err, errNoValue) {
			continue
		}
		if err != nil {
			warnings = append(warnings, ParseWarning{
				Row:    row.Number,
				Field:  meta.Key,
				Raw:    cell.String(),
				Reason: err.Error(),
			})
			continue
		}
		fields[meta.Key] = v
	}
	return fields, warnings
}

func convertCell(meta FieldMeta, cell CellValue) (Value, error) {
	switch meta.Kind {
	case KindNumber:
		n, err := parseNumber(cell)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(n), nil
	case KindDate:
		d, err := parseDate(cell)
		if err != nil {
			return Value{}, err
		}
		return DateValue(d), nil
	case KindList:
		items := SplitList(cell.String())
		if len(items) == 0 {
			return Value{}, errNoValue
		}
		return ListValue(items), nil
	case KindTrackingGroups:
		groups := SplitTrackingGroups(cell.String())
		if len(groups) == 0 {
			return Value{}, errNoValue
		}
		return ListValue(groups), nil
	case KindReference:
		s := strings.TrimSpace(cell.String())
		if s == "" {
			return Value{}, errNoValue
		}
		return Value{Kind: ValueReference, Text: s}, nil
	default:
		s := strings.TrimSpace(cell.String())
		if s == "" {
			return Value{}, errNoValue
		}
		return TextValue(s), nil
	}
}

func parseNumber(cell CellValue) (float64, error) {
	switch cell.Kind {
	case CellNumber:
		return cell.Number, nil
	case CellDate:
		return 0, errors.New("date where a number was expected")
	}
	s := strings.TrimSpace(width.Fold.String(cell.Text))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, errNoValue
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	return n, nil
}

func parseDate(cell CellValue) (time.Time, error) {
	switch cell.Kind {
	case CellDate:
		return cell.Time, nil
	case CellNumber:
		if cell.Number <= 0 {
			return time.Time{}, errors.New("not a date serial")
		}
		return excelize.ExcelDateToTime(cell.Number, false)
	}
	s := strings.TrimSpace(cell.Text)
	if s == "" {
		return time.Time{}, errNoValue
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Serial numbers sometimes arrive as text from CSV exports.
	if n, err := strconv.ParseFloat(s, 64); err == nil && n > 0 {
		return excelize.ExcelDateToTime(n, false)
	}
	return time.Time{}, errors.New("unrecognized date")
}

// SplitList splits a comma separated string into trimmed, non-empty tokens.
// Full-width commas are accepted.
func SplitList(s string) []string {
	s = width.Fold.String(s)
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitTrackingGroups splits "a|b,c" into the groups ["a|b", "c"], trimming
// every tracking number and dropping empty numbers and groups.
func SplitTrackingGroups(s string) []string {
	var out []string
	for _, group := range SplitList(s) {
		var numbers []string
		for _, n := range strings.Split(group, "|") {
			if n = strings.TrimSpace(n); n != "" {
				numbers = append(numbers, n)
			}
		}
		if len(numbers) > 0 {
			out = append(out, strings.Join(numbers, "|"))
		}
	}
	return out
}
