package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	mconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/repository"
)

// Стили
var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}  // #3498db
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}    // #2c3e50
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241} // #ecf0f1
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141} // #7f8c8d

	titleStyle = props.Text{
		Size:  18,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerBgColor,
	}

	smallStyle = props.Text{
		Size:  8,
		Color: darkGrayColor,
	}

	tableHeaderStyle = &props.Cell{
		BackgroundColor: primaryColor,
	}

	tableCellStyle = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}
)

// PDFGenerator генератор PDF отчётов. Таблица переносится на новые страницы автоматически.
type PDFGenerator struct {
	cfg config.PDFConfig
}

// NewPDFGenerator создаёт новый генератор
func NewPDFGenerator(cfg config.PDFConfig) *PDFGenerator {
	return &PDFGenerator{cfg: cfg}
}

// Format возвращает формат генератора
func (g *PDFGenerator) Format() repository.ReportFormat {
	return repository.FormatPDF
}

// Generate генерирует PDF: заголовок, время генерации и таблицу
func (g *PDFGenerator) Generate(ctx context.Context, table *Table) ([]byte, error) {
	m := maroto.New(g.buildConfig(len(table.Columns)))

	g.addHeader(m, table)

	if len(table.Columns) > 0 {
		g.addTableHeader(m, table)
	}

	for i, row := range table.Rows {
		if err := cancelled(ctx, i); err != nil {
			return nil, err
		}
		cols := make([]core.Col, len(table.Columns))
		for j, col := range table.Columns {
			cols[j] = text.NewCol(1, table.Cell(row, col), g.cellText()).WithStyle(tableCellStyle)
		}
		m.AddRow(7, cols...)
	}

	if len(table.Rows) == 0 {
		m.AddRow(8, text.NewCol(g.gridSize(len(table.Columns)), "No data", props.Text{
			Size:  9,
			Align: align.Center,
			Color: darkGrayColor,
			Top:   2,
		}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return doc.GetBytes(), nil
}

// buildConfig сетка равна количеству колонок, каждая колонка занимает одну ячейку
func (g *PDFGenerator) buildConfig(columns int) *entity.Config {
	b := mconfig.NewBuilder().
		WithMaxGridSize(g.gridSize(columns)).
		WithLeftMargin(valueOr(g.cfg.MarginLeft, 15)).
		WithTopMargin(valueOr(g.cfg.MarginTop, 15)).
		WithRightMargin(valueOr(g.cfg.MarginRight, 15))

	switch strings.ToLower(g.cfg.PageSize) {
	case "letter":
		b = b.WithPageSize(pagesize.Letter)
	case "legal":
		b = b.WithPageSize(pagesize.Legal)
	case "a3":
		b = b.WithPageSize(pagesize.A3)
	default:
		b = b.WithPageSize(pagesize.A4)
	}

	if g.cfg.Orientation == "landscape" {
		b = b.WithOrientation(orientation.Horizontal)
	} else {
		b = b.WithOrientation(orientation.Vertical)
	}

	if g.cfg.EnablePageNumbers {
		b = b.WithPageNumber()
	}

	return b.Build()
}

func (g *PDFGenerator) gridSize(columns int) int {
	if columns <= 0 {
		return 12
	}
	return columns
}

func (g *PDFGenerator) cellText() props.Text {
	return props.Text{
		Size:  valueOr(g.cfg.FontSize, 9),
		Align: align.Center,
	}
}

func (g *PDFGenerator) addHeader(m core.Maroto, table *Table) {
	grid := g.gridSize(len(table.Columns))
	title := titleStyle
	if g.cfg.HeaderFontSize > 0 {
		title.Size = g.cfg.HeaderFontSize
	}

	m.AddRow(12, text.NewCol(grid, table.Title, title))
	m.AddRow(4, line.NewCol(grid))

	m.AddRow(6, text.NewCol(grid,
		"Generated: "+table.formatter().FormatDateTime(table.GeneratedAt),
		props.Text{Size: 8, Color: darkGrayColor, Align: align.Right},
	))

	if table.Description != "" {
		m.AddRow(5, text.NewCol(grid, table.Description, smallStyle))
	}

	m.AddRow(4)
}

func (g *PDFGenerator) addTableHeader(m core.Maroto, table *Table) {
	headerText := props.Text{
		Size:  valueOr(g.cfg.FontSize, 9),
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
		Top:   1,
	}

	cols := make([]core.Col, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = text.NewCol(1, col.Header, headerText).WithStyle(tableHeaderStyle)
	}
	m.AddRow(8, cols...)
}

func valueOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
