package panel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Row is implemented by result types that serialize to a fixed column set.
type Row interface {
	Values() []string
}

// WriteCSV writes a header and rows to w.
func WriteCSV[T Row](w io.Writer, header []string, rows []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("error writing row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to a file at path, replacing any existing file.
func WriteCSVFile[T Row](path string, header []string, rows []T) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return WriteCSV(f, header, rows)
}

// FormatFloat renders a float with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatNullable renders nil as an empty cell.
func FormatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}
