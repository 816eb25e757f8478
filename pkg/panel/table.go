package panel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ColRegion   = "region"
	ColDate     = "date"
	ColMonth    = "month"
	ColScenario = "scenario"
)

var (
	missingTokens = map[string]bool{
		"":     true,
		"na":   true,
		"n/a":  true,
		"nan":  true,
		"null": true,
		"none": true,
	}

	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01",
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
	}
)

// Table is an ordered set of flat records read from one dataset.
type Table struct {
	Name    string
	Columns []string
	Records []Record

	index map[string]int
}

// Record is a single row; values are addressed by column name.
type Record struct {
	table  *Table
	values []string
}

// NewTable creates a table with the given header. Column names are trimmed
// and lower-cased so lookups are not sensitive to spreadsheet formatting.
func NewTable(name string, columns []string) *Table {
	t := &Table{
		Name:    name,
		Columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		c = strings.ToLower(strings.TrimSpace(c))
		t.Columns[i] = c
		if _, ok := t.index[c]; !ok {
			t.index[c] = i
		}
	}
	return t
}

// Append adds a row. Short rows are padded with missing values.
func (t *Table) Append(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Records = append(t.Records, Record{table: t, values: row})
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// Has reports whether the table carries the named column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require verifies that every listed column is present. The returned error
// is a *SchemaError listing all missing columns in the order requested.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Dataset: t.Name, Missing: missing}
	}
	return nil
}

// String returns the raw trimmed value of col.
func (r Record) String(col string) string {
	i, ok := r.table.index[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Float returns the numeric value of col. The second return is false when
// the value is missing, unparsable or not finite.
func (r Record) Float(col string) (float64, bool) {
	s := r.String(col)
	if missingTokens[strings.ToLower(s)] {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Time parses col as a date using the supported layouts.
func (r Record) Time(col string) (time.Time, bool) {
	t, err := ParseDate(r.String(col))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Month returns the calendar month bucket of col.
func (r Record) Month(col string) (time.Time, bool) {
	t, ok := r.Time(col)
	if !ok {
		return time.Time{}, false
	}
	return MonthOf(t), true
}

// ParseDate parses s with the first matching supported layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", s)
}

// MonthOf truncates t to the first instant of its calendar month in UTC.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Key identifies one (region, month) cell of the panel.
type Key struct {
	Region string
	Month  time.Time
}

// Less orders keys by region, then month.
func (k Key) Less(o Key) bool {
	if k.Region != o.Region {
		return k.Region < o.Region
	}
	return k.Month.Before(o.Month)
}

// SortKeys sorts keys by region, then month.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
