package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is tabular export content. Rows are positional and must line up
// with Columns; short rows are padded with empty cells.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

func (d Dataset) normalize(row []string) []string {
	if len(row) == len(d.Columns) {
		return row
	}
	out := make([]string, len(d.Columns))
	copy(out, row)
	return out
}

// CSVExporter renders a Dataset into CSV bytes.
type CSVExporter struct {
	// Comma overrides the field separator when non-zero.
	Comma rune
}

// NewCSVExporter builds a CSV exporter with the default comma separator.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset, header row first.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if e.Comma != 0 {
		w.Comma = e.Comma
	}

	records := make([][]string, 0, len(data.Rows)+1)
	records = append(records, data.Columns)
	for _, row := range data.Rows {
		records = append(records, data.normalize(row))
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
