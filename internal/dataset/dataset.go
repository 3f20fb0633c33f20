package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataset is returned when columns are malformed.
var ErrInvalidDataset = errors.New("invalid dataset")

// Column is a named, ordered sequence of values.
type Column struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Dataset is an immutable snapshot of a table. Replace it wholesale rather
// than editing columns in place.
type Dataset struct {
	Name     string
	Columns  []Column
	Warnings []string

	rows  int
	index map[string]int
}

// New validates the columns and builds a Dataset. All columns must have the
// same length and distinct, non-empty names.
func New(name string, columns []Column) (*Dataset, error) {
	d := &Dataset{Name: name, Columns: columns, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrInvalidDataset, i+1)
		}
		if _, dup := d.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidDataset, c.Name)
		}
		if i == 0 {
			d.rows = len(c.Values)
		} else if len(c.Values) != d.rows {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrInvalidDataset, c.Name, len(c.Values), d.rows)
		}
		d.index[c.Name] = i
	}
	return d, nil
}

// MustNew is New for tests and fixtures.
func MustNew(name string, columns []Column) *Dataset {
	d, err := New(name, columns)
	if err != nil {
		panic(err)
	}
	return d
}

// Rows returns the number of rows.
func (d *Dataset) Rows() int { return d.rows }

// Names returns column names in ordinal order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.Columns[i], true
}

// Ordinal returns the 0-based position of a column.
func (d *Dataset) Ordinal(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Row returns row i as a map of column name to native value.
func (d *Dataset) Row(i int) map[string]any {
	out := make(map[string]any, len(d.Columns))
	for _, c := range d.Columns {
		out[c.Name] = c.Values[i].Interface()
	}
	return out
}

// uniqueHeaders trims header names, fills blanks and suffixes repeats so that
// every column gets a distinct name.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s__%d", name, n)
		}
		out[i] = name
	}
	return out
}
