package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"reviewhub/services/admin-svc/internal/repository"
)

const (
	excelColumnWidth  = 20
	excelMaxSheetName = 31
	excelDefaultSheet = "Sheet1"
)

// ExcelGenerator генератор Excel отчётов
type ExcelGenerator struct{}

// NewExcelGenerator создаёт новый генератор
func NewExcelGenerator() *ExcelGenerator {
	return &ExcelGenerator{}
}

// Format возвращает формат генератора
func (g *ExcelGenerator) Format() repository.ReportFormat {
	return repository.FormatExcel
}

// Generate генерирует книгу с одним листом, названным по отчёту
func (g *ExcelGenerator) Generate(ctx context.Context, table *Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(table.Title)
	if err := f.SetSheetName(excelDefaultSheet, sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]any, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Header
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	if n := len(table.Columns); n > 0 {
		last := ColName(n - 1)
		if err := f.SetCellStyle(sheet, "A1", CellByIndex(n-1, 1), headerStyle); err != nil {
			return nil, fmt.Errorf("failed to style header: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", last, excelColumnWidth); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	values := make([]any, len(table.Columns))
	for i, row := range table.Rows {
		if err := cancelled(ctx, i); err != nil {
			return nil, err
		}
		for j, col := range table.Columns {
			values[j] = excelValue(table, row[col.Key])
		}
		if err := f.SetSheetRow(sheet, CellByIndex(0, i+2), &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// excelValue оставляет числа числами, даты форматирует по локали
func excelValue(table *Table, v any) any {
	switch v.(type) {
	case int, int16, int32, int64, float32, float64:
		return v
	default:
		return table.formatter().Value(v)
	}
}

// SheetName приводит название отчёта к допустимому имени листа Excel
func SheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "'")

	if name == "" {
		return "Report"
	}
	if runes := []rune(name); len(runes) > excelMaxSheetName {
		name = string(runes[:excelMaxSheetName])
	}
	return name
}
