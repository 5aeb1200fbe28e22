package domain

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyDataset is returned for data with a header but no rows.
var ErrEmptyDataset = errors.New("dataset has no rows")

// Dataset is a tabular dataset held as strings. Columns are interpreted by
// the scorer and the model backends.
type Dataset struct {
	Header []string
	Rows   [][]string
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *Dataset) Width() int { return len(d.Header) }

// ColumnIndex returns the position of name or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, h := range d.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of column i.
func (d *Dataset) Column(i int) []string {
	out := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if i < len(row) {
			out = append(out, row[i])
		} else {
			out = append(out, "")
		}
	}
	return out
}

// ParseCSV reads a CSV document with a header line.
func ParseCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("dataset has no header")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if header[i] == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
	}
	d := &Dataset{Header: header, Rows: records[1:]}
	if len(d.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return d, nil
}

func ParseCSVBytes(b []byte) (*Dataset, error) {
	return ParseCSV(bytes.NewReader(b))
}

// EncodeCSV writes the header and rows as CSV.
func (d *Dataset) EncodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(d.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(d.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
