package export

import (
	"bytes"
	"fmt"
	"strings"
)

// utf8BOM lets spreadsheet applications detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVOption customises a CSVExporter.
type CSVOption func(*CSVExporter)

// WithBOM prefixes the output with a UTF-8 byte order mark.
func WithBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// WithQuoteAll quotes every field instead of only those that need it.
func WithQuoteAll() CSVOption {
	return func(e *CSVExporter) { e.quoteAll = true }
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	bom      bool
	quoteAll bool
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render produces CSV encoded bytes for the dataset with CRLF line endings.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.Write(utf8BOM)
	}
	e.writeRecord(buf, data.Headers)
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		e.writeRecord(buf, record)
	}
	return buf.Bytes(), nil
}

func (e *CSVExporter) writeRecord(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if e.quoteAll || needsQuotes(field) {
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
			buf.WriteByte('"')
			continue
		}
		buf.WriteString(field)
	}
	buf.WriteString("\r\n")
}

func needsQuotes(field string) bool {
	if field == "" {
		return false
	}
	if field[0] == ' ' || field[0] == '\t' {
		return true
	}
	return strings.ContainsAny(field, "\",\r\n")
}
