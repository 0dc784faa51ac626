package generator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"reviewhub/services/admin-svc/internal/repository"
)

// CSVGenerator генератор CSV отчётов
type CSVGenerator struct{}

// NewCSVGenerator создаёт новый генератор
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

// Format возвращает формат генератора
func (g *CSVGenerator) Format() repository.ReportFormat {
	return repository.FormatCSV
}

// quotingWriter пишет CSV, заключая в кавычки каждое значение; кавычки внутри удваиваются.
// Первая ошибка запоминается, последующие записи игнорируются.
type quotingWriter struct {
	w   *bufio.Writer
	err error
}

func newQuotingWriter(w io.Writer) *quotingWriter {
	return &quotingWriter{w: bufio.NewWriter(w)}
}

func (qw *quotingWriter) Write(record []string) {
	if qw.err != nil {
		return
	}
	for i, field := range record {
		if i > 0 {
			if qw.err = qw.w.WriteByte(','); qw.err != nil {
				return
			}
		}
		if _, qw.err = qw.w.WriteString(quoteField(field)); qw.err != nil {
			return
		}
	}
	qw.err = qw.w.WriteByte('\n')
}

func (qw *quotingWriter) Flush() {
	if qw.err != nil {
		return
	}
	qw.err = qw.w.Flush()
}

func (qw *quotingWriter) Error() error {
	return qw.err
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Generate генерирует CSV: строка заголовков и по строке на запись
func (g *CSVGenerator) Generate(ctx context.Context, table *Table) ([]byte, error) {
	var buf bytes.Buffer
	qw := newQuotingWriter(&buf)

	header := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Header
	}
	qw.Write(header)

	record := make([]string, len(table.Columns))
	for i, row := range table.Rows {
		if err := cancelled(ctx, i); err != nil {
			return nil, err
		}
		for j, col := range table.Columns {
			record[j] = table.Cell(row, col)
		}
		qw.Write(record)
	}

	qw.Flush()
	if err := qw.Error(); err != nil {
		return nil, fmt.Errorf("csv write error: %w", err)
	}

	return buf.Bytes(), nil
}
