package dataset

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a dataset handle does not resolve to a stored file.
	ErrNotFound = errors.New("dataset not found")
	// ErrUnsupportedFormat is returned when a file cannot be parsed as a table.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Kind is the inferred storage type of a column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindDatetime
)

// Dtype returns the dtype label used in dataset profiles and prompts.
func (k Kind) Dtype() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindBool:
		return "bool"
	case KindDatetime:
		return "datetime64[ns]"
	default:
		return "object"
	}
}

// IsNumeric reports whether values of this kind are int64 or float64.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Column is a named, homogeneously typed series. Values hold int64, float64,
// bool, time.Time or string according to Kind; nil marks a missing cell.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Table is an in-memory, column-oriented dataset.
type Table struct {
	Columns []Column
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Names returns column names in declaration order.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (*Column, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Row returns row i as a column-name keyed record.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		if i < len(c.Values) {
			row[c.Name] = c.Values[i]
		}
	}
	return row
}

// Head returns a table holding at most the first n rows. Values are shared.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > t.Len() {
		n = t.Len()
	}
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = Column{Name: c.Name, Kind: c.Kind, Values: c.Values[:n]}
	}
	return out
}

// FormatValue renders a cell for prompts and JSON: datetimes become
// ISO-8601 strings, every other value is returned unchanged.
func FormatValue(v any) any {
	if ts, ok := v.(time.Time); ok {
		if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
			return ts.Format("2006-01-02")
		}
		return ts.Format("2006-01-02T15:04:05")
	}
	return v
}
