package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/repository"
)

// ErrUnsupportedFormat формат не поддерживается ни одним генератором
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Column колонка отчёта: ключ записи и заголовок
type Column struct {
	Key    string
	Header string
}

// Table данные для генерации отчёта
type Table struct {
	Title       string
	Description string
	Columns     []Column
	Rows        []repository.Record
	GeneratedAt time.Time
	Formatter   *Formatter
}

func (t *Table) formatter() *Formatter {
	if t.Formatter == nil {
		t.Formatter = DefaultFormatter()
	}
	return t.Formatter
}

// Cell возвращает отформатированное значение ячейки
func (t *Table) Cell(row repository.Record, col Column) string {
	return t.formatter().Value(row[col.Key])
}

// Generator интерфейс генератора отчётов
type Generator interface {
	Generate(ctx context.Context, table *Table) ([]byte, error)
	Format() repository.ReportFormat
}

// Factory выбирает генератор по формату
type Factory struct {
	generators map[repository.ReportFormat]Generator
}

// NewFactory создаёт фабрику со всеми поддерживаемыми форматами
func NewFactory(pdfCfg config.PDFConfig) *Factory {
	f := &Factory{generators: make(map[repository.ReportFormat]Generator)}
	for _, g := range []Generator{
		NewCSVGenerator(),
		NewExcelGenerator(),
		NewPDFGenerator(pdfCfg),
	} {
		f.generators[g.Format()] = g
	}
	return f
}

// Get возвращает генератор для формата
func (f *Factory) Get(format repository.ReportFormat) (Generator, error) {
	g, ok := f.generators[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return g, nil
}

var defaultColumns = map[repository.ReportType][]string{
	repository.ReportUsers:    {"id", "name", "email", "role", "status", "created_at"},
	repository.ReportOrders:   {"id", "user_id", "status", "total", "created_at"},
	repository.ReportProducts: {"id", "name", "sku", "price", "stock", "created_at"},
}

// DefaultColumns колонки по умолчанию для типа отчёта. Никогда не пустые для известного типа.
func DefaultColumns(reportType repository.ReportType) ([]string, bool) {
	cols, ok := defaultColumns[reportType]
	if !ok {
		return nil, false
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out, true
}

// Columns строит колонки с заголовками из ключей: "created_at" → "Created At"
func Columns(keys []string) []Column {
	caser := cases.Title(language.English)
	cols := make([]Column, len(keys))
	for i, k := range keys {
		cols[i] = Column{Key: k, Header: caser.String(strings.ReplaceAll(k, "_", " "))}
	}
	return cols
}

// ColName преобразует индекс колонки в буквенное обозначение (0 -> A, 25 -> Z, 26 -> AA)
func ColName(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

// CellByIndex возвращает адрес ячейки по индексам
func CellByIndex(colIndex, rowIndex int) string {
	return fmt.Sprintf("%s%d", ColName(colIndex), rowIndex)
}

// checkEvery через сколько строк генераторы проверяют отмену контекста
const checkEvery = 1000

func cancelled(ctx context.Context, i int) error {
	if i%checkEvery != 0 {
		return nil
	}
	return ctx.Err()
}
