package panel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	extCSV  = ".csv"
	extXLSX = ".xlsx"
)

var errNoHeader = errors.New("no header row")

// ReadFile loads a dataset from a CSV file or the first sheet of an XLSX
// workbook, picked by file extension.
func ReadFile(name, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extXLSX:
		return ReadXLSX(name, path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening %s dataset file %s: %w", name, path, err)
		}
		defer f.Close()
		return ReadCSV(name, f)
	}
}

// ReadCSV reads a headed CSV stream into a table.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s dataset: %w", name, errNoHeader)
		}
		return nil, fmt.Errorf("error reading %s dataset header: %w", name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	t := NewTable(name, header)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s dataset row %d: %w", name, t.Len()+2, err)
		}
		t.Append(row...)
	}

	slog.Debug("dataset loaded", "name", name, "columns", len(t.Columns), "rows", t.Len())
	return t, nil
}

// ReadXLSX reads the first sheet of a workbook; the first row is the header.
func ReadXLSX(name, path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s workbook %s: %w", name, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s workbook %s has no sheets", name, path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %s of %s: %w", sheets[0], path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s dataset: %w", name, errNoHeader)
	}

	t := NewTable(name, rows[0])
	for _, row := range rows[1:] {
		t.Append(row...)
	}

	slog.Debug("workbook loaded", "name", name, "sheet", sheets[0], "rows", t.Len())
	return t, nil
}
