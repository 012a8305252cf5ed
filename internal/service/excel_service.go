package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/models"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var ErrUnsupportedFile = errors.New("unsupported file type, expected .xlsx or .csv")

const (
	templateSheet     = "运单数据"
	instructionsSheet = "填写说明"
	summarySheet      = "导入汇总"
	errorsSheet       = "错误明细"
)

type ExcelService struct{}

func NewExcelService() *ExcelService {
	return &ExcelService{}
}

// ParseRows reads the first sheet of an xlsx upload, or a csv upload, into
// raw rows. Line 1 is the header; data rows keep their sheet line number.
func (s *ExcelService) ParseRows(r io.Reader, filename string) ([]importer.RawRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return s.parseWorkbook(r)
	case ".csv":
		return s.parseCSV(r)
	}
	return nil, ErrUnsupportedFile
}

func (s *ExcelService) parseWorkbook(r io.Reader) ([]importer.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	sheetName := sheets[0]

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, importer.ErrNoRows
	}

	header := rows[0]
	out := make([]importer.RawRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		values := make([]importer.CellValue, len(rows[i]))
		for j, raw := range rows[i] {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			typ, err := f.GetCellType(sheetName, cell)
			if err != nil {
				return nil, fmt.Errorf("failed to read cell %s: %w", cell, err)
			}
			values[j] = workbookCell(typ, raw)
		}
		out = append(out, importer.NewRawRow(i+1, header, values))
	}
	return out, nil
}

// workbookCell keeps numeric cells numeric so date serials and quantities
// are not reformatted by the sheet's number format.
func workbookCell(typ excelize.CellType, raw string) importer.CellValue {
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return importer.NumberCell(n)
		}
	}
	return importer.TextCell(raw)
}

func (s *ExcelService) parseCSV(r io.Reader) ([]importer.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		// Excel on Chinese Windows saves CSV as GB18030.
		src = transform.NewReader(src, simplifiedchinese.GB18030.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}
	if len(records) < 2 {
		return nil, importer.ErrNoRows
	}

	header := records[0]
	out := make([]importer.RawRow, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		values := make([]importer.CellValue, len(records[i]))
		for j, v := range records[i] {
			values[j] = importer.TextCell(v)
		}
		out = append(out, importer.NewRawRow(i+1, header, values))
	}
	return out, nil
}

// Template returns an xlsx template for mode with a sample row and an
// instructions sheet.
func (s *ExcelService) Template(mode importer.ImportMode) ([]byte, error) {
	var fields []importer.FieldMeta
	switch mode {
	case importer.ModeSelective:
		fields = append(importer.IdentificationFields(), importer.UpdatableFields()...)
	case importer.ModeFull:
		fields = importer.Fields()
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(templateSheet)
	if err != nil {
		return nil, err
	}

	for i, field := range fields {
		cell := fmt.Sprintf("%s1", getColumnName(i))
		f.SetCellValue(templateSheet, cell, field.Label)
		f.SetCellValue(templateSheet, fmt.Sprintf("%s2", getColumnName(i)), sampleValue(field.Key))
		f.SetColWidth(templateSheet, getColumnName(i), getColumnName(i), 16)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	f.SetCellStyle(templateSheet, "A1", fmt.Sprintf("%s1", getColumnName(len(fields)-1)), headerStyle)

	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return nil, err
	}
	instructions := []string{"填写说明:"}
	if mode == importer.ModeSelective {
		instructions = append(instructions,
			"1. 项目名称、司机姓名、装货地点、卸货地点用于定位已有运单，必须与系统一致",
			"2. 只会更新预览时勾选的字段，其余列可以留空",
			"3. 留空的单元格不会覆盖系统中的值",
		)
	} else {
		instructions = append(instructions,
			"1. 项目名称、司机姓名、装货地点、卸货地点、装货日期为必填项",
			"2. 卸货日期留空时默认等于装货日期，费用留空时默认为0",
			"3. 与已有运单重复的行需要在预览中确认后才会导入",
		)
	}
	instructions = append(instructions,
		"日期格式: YYYY-MM-DD，也可以使用Excel日期单元格",
		"多个平台名称用逗号分隔；同一平台的多个运单号用 | 分隔",
		"",
		"注意: 请勿修改表头，从第2行开始填写数据。",
	)
	for i, line := range instructions {
		f.SetCellValue(instructionsSheet, fmt.Sprintf("A%d", i+1), line)
	}
	f.SetColWidth(instructionsSheet, "A", "A", 70)
	instructionStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 10},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F0F8FF"}, Pattern: 1},
	})
	f.SetCellStyle(instructionsSheet, "A1", "A1", instructionStyle)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

func sampleValue(key importer.FieldKey) interface{} {
	switch key {
	case importer.FieldProjectName:
		return "华东项目"
	case importer.FieldDriverName:
		return "张三"
	case importer.FieldLoadingLocation:
		return "上海"
	case importer.FieldUnloadingLocation:
		return "杭州"
	case importer.FieldLoadingDate:
		return "2024-03-01"
	case importer.FieldUnloadingDate:
		return "2024-03-02"
	case importer.FieldLoadingWeight:
		return 30
	case importer.FieldUnloadingWeight:
		return 29.5
	case importer.FieldChainName:
		return "默认链路"
	case importer.FieldLicensePlate:
		return "沪A12345"
	case importer.FieldDriverPhone:
		return "13800000000"
	case importer.FieldCurrentCost:
		return 1200
	case importer.FieldExtraCost:
		return 0
	case importer.FieldTransportType:
		return importer.DefaultTransportType
	case importer.FieldCargoType:
		return "钢材"
	case importer.FieldRemarks:
		return ""
	case importer.FieldOtherPlatformNames:
		return "平台A,平台B"
	case importer.FieldExternalTrackingNumbers:
		return "A001|A002,B001"
	}
	return ""
}

// OutcomeReport renders a finished run as a workbook with a summary sheet and
// one line per failed, skipped or invalid row.
func (s *ExcelService) OutcomeReport(run *models.ImportRun) ([]byte, error) {
	if run.Outcome == nil {
		return nil, fmt.Errorf("run %s has no outcome yet", run.ID)
	}
	outcome := run.Outcome

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"运行编号", run.ID},
		{"导入模式", string(run.Mode)},
		{"文件名", run.Filename},
		{"总行数", outcome.Total},
		{"成功", outcome.SuccessCount},
		{"失败", outcome.FailedCount},
		{"跳过", outcome.SkippedCount},
		{"完成时间", outcome.FinishedAt.Format("2006-01-02 15:04:05")},
	}
	if outcome.TransportError != "" {
		summary = append(summary, []interface{}{"提交错误", outcome.TransportError})
	}
	if outcome.Total > 0 {
		rate := float64(outcome.SuccessCount) / float64(outcome.Total) * 100
		summary = append(summary, []interface{}{"成功率", fmt.Sprintf("%.1f%%", rate)})
	}
	for i, line := range summary {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), line[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), line[1])
	}
	f.SetColWidth(summarySheet, "A", "A", 15)
	f.SetColWidth(summarySheet, "B", "B", 40)
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), summaryStyle)

	if _, err := f.NewSheet(errorsSheet); err != nil {
		return nil, err
	}
	headers := []string{"行号", "运单编号", "类型", "错误信息"}
	for i, header := range headers {
		f.SetCellValue(errorsSheet, fmt.Sprintf("%s1", getColumnName(i)), header)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFE6E6"}, Pattern: 1},
	})
	f.SetCellStyle(errorsSheet, "A1", fmt.Sprintf("%s1", getColumnName(len(headers)-1)), headerStyle)

	var lines [][]interface{}
	for _, e := range outcome.RowErrors {
		lines = append(lines, []interface{}{e.Row, e.AutoNumber, string(e.Kind), e.Message})
	}
	for _, row := range outcome.SkippedRows {
		lines = append(lines, []interface{}{row, "", "skipped", "未导入或无需更新"})
	}
	if run.Full != nil {
		for _, inv := range run.Full.Invalid {
			lines = append(lines, []interface{}{inv.Row, "", "invalid", inv.Reason})
		}
	}

	errorStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFFFCC"}, Pattern: 1},
	})
	for rowIdx, values := range lines {
		row := rowIdx + 2
		for colIdx, value := range values {
			f.SetCellValue(errorsSheet, fmt.Sprintf("%s%d", getColumnName(colIdx), row), value)
		}
		f.SetCellStyle(errorsSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", getColumnName(len(headers)-1), row), errorStyle)
	}
	f.SetColWidth(errorsSheet, "A", "A", 10)
	f.SetColWidth(errorsSheet, "B", "B", 24)
	f.SetColWidth(errorsSheet, "C", "C", 22)
	f.SetColWidth(errorsSheet, "D", "D", 60)

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return buf.Bytes(), nil
}

func getColumnName(index int) string {
	result := ""
	for index >= 0 {
		result = string(rune('A'+(index%26))) + result
		index = index/26 - 1
	}
	return result
}
