package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// utf8BOM lets spreadsheet tools detect Cyrillic CSV content.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errNoColumns = errors.New("dataset has no columns")

// Column describes one output column. Weight scales the PDF cell width; zero counts as one.
type Column struct {
	Key    string
	Title  string
	Weight float64
	Align  string
}

func (c Column) title() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Key
}

// Dataset is a table keyed by Column.Key. Missing keys render as empty cells.
type Dataset struct {
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) titles() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.title()
	}
	return out
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}

// CSVExporter renders a Dataset as CSV.
type CSVExporter struct {
	comma rune
	bom   bool
}

// CSVOption customises CSV output.
type CSVOption func(*CSVExporter)

// WithSemicolon switches the delimiter to ';' as expected by ru-locale spreadsheets.
func WithSemicolon() CSVOption {
	return func(e *CSVExporter) { e.comma = ';' }
}

// WithBOM prefixes the output with a UTF-8 byte order mark.
func WithBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{comma: ','}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render buffers the CSV output of data.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams data to w, title row first.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Columns) == 0 {
		return fmt.Errorf("csv: %w", errNoColumns)
	}
	if e.bom {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("csv: write bom: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	writer.Comma = e.comma
	if err := writer.Write(data.titles()); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for i, row := range data.Rows {
		if err := writer.Write(data.record(row)); err != nil {
			return fmt.Errorf("csv: write row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	return nil
}
