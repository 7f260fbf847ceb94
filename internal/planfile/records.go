package planfile

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// Records tokenizes delimited text into records. Quoting follows RFC 4180
// with lazy quote handling; records whose cells are all blank are dropped.
func Records(raw string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, utf8BOM)))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "planfile: read csv row")
		}
		if isBlank(record) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cleanCell trims a cell and strips one pair of matching wrapping quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// recordReader feeds pre-tokenized records to csvutil, cleaning cells and
// padding or truncating each record to the header width.
type recordReader struct {
	records [][]string
	width   int
	next    int
}

func (r *recordReader) Read() ([]string, error) {
	if r.next >= len(r.records) {
		return nil, io.EOF
	}
	record := r.records[r.next]
	r.next++

	out := make([]string, r.width)
	for i := range out {
		if i < len(record) {
			out[i] = cleanCell(record[i])
		}
	}
	return out, nil
}

// DropBlank removes records whose cells are all blank, matching what
// Records does for delimited text. Used for spreadsheet rows.
func DropBlank(records [][]string) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		if !isBlank(r) {
			out = append(out, r)
		}
	}
	return out
}
