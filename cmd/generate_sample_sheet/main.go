package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

func main() {
	outDir := flag.String("out", filepath.Join("storage", "uploads"), "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Printf("Error creating %s: %v\n", *outDir, err)
		os.Exit(1)
	}

	// Selective update: rows 2-4 match the seeded records, row 5 does not,
	// row 6 names a chain that does not exist in the project.
	selectiveHeaders := []string{"项目名称", "司机姓名", "装货地点", "卸货地点", "装货日期", "卸货数量", "运费金额", "合作链路", "备注"}
	selectiveRows := [][]interface{}{
		{"华东项目", "张三", "上海", "杭州", 45352, 29.5, 1200, "链路甲", "磅单已核对"},
		{"华东项目", "李四", "上海", "南京", "2024-03-02", 31, "", "", ""},
		{"华东项目", "王五", "上海", "苏州", "2024/03/03", "", 980, "链路乙", "补录运费"},
		{"华东项目", "赵六", "上海", "宁波", "2024-03-04", 28, "", "", "无此运单"},
		{"华东项目", "张三", "上海", "杭州", "2024-03-05", 30, "", "链路丙", "链路不存在"},
	}

	// Full import: row 2 duplicates a seeded record, row 5 misses the driver.
	fullHeaders := []string{"项目名称*", "司机姓名*", "车牌号", "司机电话", "装货地点*", "卸货地点*", "装货日期*", "卸货日期", "装货数量", "卸货数量", "运费金额", "额外费用", "运输类型", "合作链路", "其他平台名称", "其他平台运单号"}
	fullRows := [][]interface{}{
		{"华东项目", "张三", "沪A12345", "13800000001", "上海", "杭州", "2024-03-01", "", 30, 29.5, 1200, 0, "", "链路甲", "", ""},
		{"华东项目", "孙七", "沪B23456", "13800000002", "上海", "合肥", "2024-03-06", "2024-03-07", 32, 31.8, 1500, 50, "实际运输", "链路甲", "平台A,平台B", "A001|A002,B001"},
		{"华东项目", "周八", "沪C34567", "13800000003", "上海", "无锡", 45357, "", 27, 27, 900, 0, "退货", "链路乙", "", ""},
		{"华东项目", "", "沪D45678", "", "上海", "常州", "2024-03-08", "", 25, "", "", "", "", "", "", ""},
	}

	if err := writeSheet(filepath.Join(*outDir, "sample_selective_update.xlsx"), selectiveHeaders, selectiveRows); err != nil {
		fmt.Printf("Error writing selective sample: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Selective sample created: %d rows\n", len(selectiveRows))

	if err := writeSheet(filepath.Join(*outDir, "sample_full_import.xlsx"), fullHeaders, fullRows); err != nil {
		fmt.Printf("Error writing full import sample: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Full import sample created: %d rows\n", len(fullRows))
}

func writeSheet(path string, headers []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "运单数据"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	for i, header := range headers {
		f.SetCellValue(sheetName, fmt.Sprintf("%s1", getColumnName(i)), header)
		f.SetColWidth(sheetName, getColumnName(i), getColumnName(i), 14)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	f.SetCellStyle(sheetName, "A1", fmt.Sprintf("%s1", getColumnName(len(headers)-1)), headerStyle)

	for rowIdx, rowData := range rows {
		for colIdx, value := range rowData {
			f.SetCellValue(sheetName, fmt.Sprintf("%s%d", getColumnName(colIdx), rowIdx+2), value)
		}
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")
	return f.SaveAs(path)
}

func getColumnName(index int) string {
	result := ""
	for index >= 0 {
		result = string(rune('A'+(index%26))) + result
		index = index/26 - 1
	}
	return result
}
