package importer

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical text form of every date field.
const DateLayout = "2006-01-02"

// CellKind identifies what a spreadsheet cell held before any field mapping.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDate
)

// CellValue is one untyped spreadsheet cell.
type CellValue struct {
	Kind   CellKind  `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Number float64   `json:"number,omitempty"`
	Time   time.Time `json:"time,omitempty"`
}

// TextCell returns a text cell, or an empty cell for blank input.
func TextCell(s string) CellValue {
	if strings.TrimSpace(s) == "" {
		return CellValue{}
	}
	return CellValue{Kind: CellText, Text: s}
}

func NumberCell(n float64) CellValue {
	return CellValue{Kind: CellNumber, Number: n}
}

func DateCell(t time.Time) CellValue {
	if t.IsZero() {
		return CellValue{}
	}
	return CellValue{Kind: CellDate, Time: t}
}

// IsEmpty reports whether the cell carries no usable value.
func (v CellValue) IsEmpty() bool {
	switch v.Kind {
	case CellEmpty:
		return true
	case CellText:
		return strings.TrimSpace(v.Text) == ""
	case CellDate:
		return v.Time.IsZero()
	}
	return false
}

func (v CellValue) String() string {
	switch v.Kind {
	case CellText:
		return v.Text
	case CellNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case CellDate:
		return v.Time.Format(DateLayout)
	}
	return ""
}

// Cell pairs a header label with the cell found under it.
type Cell struct {
	Header string    `json:"header"`
	Value  CellValue `json:"value"`
}

// RawRow is one spreadsheet line. Number is the 1-based sheet line number
// (the header occupies line 1) and identifies the row in every report.
type RawRow struct {
	Number int    `json:"number"`
	Cells  []Cell `json:"cells"`
}

// NewRawRow zips headers with values. Columns without a header are dropped.
func NewRawRow(number int, headers []string, values []CellValue) RawRow {
	row := RawRow{Number: number, Cells: make([]Cell, 0, len(headers))}
	for i, h := range headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		var v CellValue
		if i < len(values) {
			v = values[i]
		}
		row.Cells = append(row.Cells, Cell{Header: h, Value: v})
	}
	return row
}

// IsEmpty reports whether every cell of the row is empty.
func (r RawRow) IsEmpty() bool {
	for _, c := range r.Cells {
		if !c.Value.IsEmpty() {
			return false
		}
	}
	return true
}
