package importer

import (
	"reflect"
	"testing"
	"time"
)

func TestResolveStandardLabelWins(t *testing.T) {
	table := DefaultAliasTable()
	// The optional-marker column comes first in the sheet but the standard
	// label has priority.
	row := NewRawRow(2,
		[]string{"运费金额(可选)", "运费金额"},
		[]CellValue{NumberCell(500), NumberCell(720)},
	)

	got, ok := table.Resolve(row, FieldCurrentCost)
	if !ok {
		t.Fatal("expected current_cost to resolve")
	}
	if got.Number != 720 {
		t.Errorf("expected value under 运费金额 (720), got %v", got.Number)
	}
}

func TestResolveFallsBackWhenHigherAliasEmpty(t *testing.T) {
	table := DefaultAliasTable()
	row := NewRawRow(3,
		[]string{"运费金额", "运费"},
		[]CellValue{TextCell("  "), NumberCell(88)},
	)

	got, ok := table.Resolve(row, FieldCurrentCost)
	if !ok || got.Number != 88 {
		t.Errorf("expected fallback to synonym value 88, got %v (ok=%v)", got, ok)
	}
}

func TestResolveNormalizesHeaders(t *testing.T) {
	table := DefaultAliasTable()
	tests := []struct {
		name   string
		header string
		key    FieldKey
	}{
		{"full-width brackets", "卸货数量（可选）", FieldUnloadingWeight},
		{"surrounding spaces", " 卸货数量 ", FieldUnloadingWeight},
		{"starred label", "司机姓名*", FieldDriverName},
		{"required marker", "项目名称(必填)", FieldProjectName},
		{"latin synonym case", "Remark", FieldRemarks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewRawRow(2, []string{tt.header}, []CellValue{TextCell("x")})
			if _, ok := table.Resolve(row, tt.key); !ok {
				t.Errorf("header %q did not resolve to %s", tt.header, tt.key)
			}
		})
	}
}

func TestResolveIsTotal(t *testing.T) {
	row := NewRawRow(2, []string{"备注"}, []CellValue{TextCell("x")})

	if _, ok := DefaultAliasTable().Resolve(row, FieldKey("no_such_field")); ok {
		t.Error("unknown field key must resolve to absent")
	}
	var nilTable *AliasTable
	if _, ok := nilTable.Resolve(row, FieldRemarks); ok {
		t.Error("nil table must resolve to absent")
	}
	if _, ok := DefaultAliasTable().Resolve(RawRow{Number: 2}, FieldRemarks); ok {
		t.Error("row without cells must resolve to absent")
	}
}

func TestCustomAliasTable(t *testing.T) {
	table := NewAliasTable(map[FieldKey][]string{
		FieldRemarks: {"客户备注", "备注", "客户备注"},
	})
	if got := table.Aliases(FieldRemarks); len(got) != 3 {
		t.Errorf("expected configured aliases to be kept as given, got %v", got)
	}

	row := NewRawRow(2, []string{"备注", "客户备注"}, []CellValue{TextCell("b"), TextCell("a")})
	got, ok := table.Resolve(row, FieldRemarks)
	if !ok || got.Text != "a" {
		t.Errorf("expected first configured alias to win, got %q", got.Text)
	}
	if _, ok := table.Resolve(row, FieldCargoType); ok {
		t.Error("fields without aliases must resolve to absent")
	}
}

func TestNewRawRowDropsHeaderlessColumns(t *testing.T) {
	row := NewRawRow(4, []string{"备注", "", "车牌号"}, []CellValue{TextCell("a"), TextCell("b")})
	want := []Cell{
		{Header: "备注", Value: TextCell("a")},
		{Header: "车牌号", Value: CellValue{}},
	}
	if !reflect.DeepEqual(row.Cells, want) {
		t.Errorf("cells = %+v, want %+v", row.Cells, want)
	}
	if row.IsEmpty() {
		t.Error("row with a value must not be empty")
	}
	blank := NewRawRow(5, []string{"备注"}, []CellValue{TextCell(" ")})
	if !blank.IsEmpty() {
		t.Error("row with only blank cells must be empty")
	}
	if !DateCell(time.Time{}).IsEmpty() {
		t.Error("zero date cell must be empty")
	}
}
