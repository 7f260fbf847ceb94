package fetcher

import (
	"bytes"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var zipMagic = []byte("PK\x03\x04")

// IsXLSX reports whether a file should be read as a spreadsheet, judged by
// its name and its leading bytes.
func IsXLSX(fileName string, data []byte) bool {
	if strings.EqualFold(path.Ext(fileName), ".xlsx") {
		return true
	}
	return bytes.HasPrefix(data, zipMagic)
}

// XLSXOptions selects the sheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX returns the rows of one sheet of a workbook as string records,
// header row first.
func ReadXLSX(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
