package dataset

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool { return hasExt(filename, ".xlsx") }

// Load reads the selected sheet; the first row is the header.
func (xlsxLoader) Load(name string, content []byte, opt Options) (*Dataset, error) {
	f, err := xlsx.OpenBinary(content)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	sheet, err := pickSheet(f, opt)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return New(name, nil)
	}
	header := rowToStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, r := range sheet.Rows[1:] {
		if r == nil {
			rows = append(rows, nil)
			continue
		}
		rows = append(rows, rowToStrings(r))
	}
	// trailing empty header cells come from formatted but unused columns
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	return fromRecords(fmt.Sprintf("%s (sheet: %s)", name, sheet.Name), header, rows, opt)
}

func pickSheet(f *xlsx.File, opt Options) (*xlsx.Sheet, error) {
	if opt.SheetName != "" {
		sheet, ok := f.Sheet[opt.SheetName]
		if !ok {
			available := make([]string, len(f.Sheets))
			for i, s := range f.Sheets {
				available[i] = s.Name
			}
			return nil, eris.Errorf("xlsx: sheet %q not found (available: %v)", opt.SheetName, available)
		}
		return sheet, nil
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	if idx > len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", idx, len(f.Sheets))
	}
	return f.Sheets[idx-1], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
