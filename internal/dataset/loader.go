package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Options controls how raw files become a Dataset.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
	// Delimiter for CSV. If 0, sniffed from the header line.
	Delimiter rune `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune `json:"decimal_separator,omitempty" yaml:"decimal_separator,omitempty"`
	ThousandsSeparator rune `json:"thousands_separator,omitempty" yaml:"thousands_separator,omitempty"`
	// XLSX sheet selection; SheetIndex is 1-based and used when SheetName is empty.
	SheetName  string `json:"sheet_name,omitempty" yaml:"sheet_name,omitempty"`
	SheetIndex int    `json:"sheet_index,omitempty" yaml:"sheet_index,omitempty"`
	// NullValues are text spellings read as missing, compared case-insensitively.
	// nil means DefaultNullValues; an empty non-nil slice leaves only blanks.
	NullValues []string `json:"null_values,omitempty" yaml:"null_values,omitempty"`
}

// DefaultOptions returns reasonable defaults for dataset loading.
func DefaultOptions() Options {
	return Options{MaxRows: 1_000_000, SheetIndex: 1}
}

// Loader turns raw file content into a Dataset.
type Loader interface {
	CanLoad(filename string) bool
	Load(name string, content []byte, opt Options) (*Dataset, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

// ErrUnsupported indicates no loader accepts the file.
var ErrUnsupported = errors.New("unsupported dataset format")

// Supported reports whether some loader accepts filename.
func Supported(filename string) bool {
	for _, l := range registry {
		if l.CanLoad(filename) {
			return true
		}
	}
	return false
}

// LoadFile reads path and dispatches on its extension.
func LoadFile(path string, opt Options) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read file")
	}
	return LoadBytes(filepath.Base(path), data, opt)
}

// LoadBytes parses already-read content; filename selects the loader.
func LoadBytes(filename string, content []byte, opt Options) (*Dataset, error) {
	for _, l := range registry {
		if l.CanLoad(filename) {
			ds, err := l.Load(filepath.Base(filename), content, opt)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: load %s", filepath.Base(filename))
			}
			return ds, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(filename))
}

func init() {
	Register(csvLoader{})
	Register(jsonLoader{})
	Register(xlsxLoader{})
}

func hasExt(filename string, exts ...string) bool {
	name := strings.ToLower(filename)
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

// fromRecords builds a dataset from a header and string rows, typing each
// cell and honouring MaxRows.
func fromRecords(name string, header []string, rows [][]string, opt Options) (*Dataset, error) {
	names := uniqueHeaders(header)
	cols := make([]Column, len(names))
	for i := range cols {
		cols[i] = Column{Name: names[i], Values: make([]Value, 0, len(rows))}
	}
	limit := len(rows)
	if opt.MaxRows > 0 && opt.MaxRows < limit {
		limit = opt.MaxRows
	}
	for _, rec := range rows[:limit] {
		for j := range cols {
			var cell string
			if j < len(rec) {
				cell = rec[j]
			}
			cols[j].Values = append(cols[j].Values, ParseCell(cell, opt))
		}
	}
	ds, err := New(name, cols)
	if err != nil {
		return nil, err
	}
	if limit < len(rows) {
		ds.Warnings = append(ds.Warnings, fmt.Sprintf("loaded only %d/%d rows due to MaxRows", limit, len(rows)))
	}
	return ds, nil
}
