// Package planfile turns uploaded plan files into validated, hashed plan
// lines grouped by job key.
package planfile

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/sells-group/jobplan/internal/model"
)

// Status is the overall outcome of a parse.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrEmptyFile is the row-0 message for files without a header and at
// least one data row.
const ErrEmptyFile = "empty or no data rows"

// PlanRequired lists the columns a plan upload must carry.
var PlanRequired = []string{
	"job_key", "job_type", "delivery_address", "delivery_postcode", "delivery_date", "delivery_time_slot",
}

// ImportRequired lists the columns an ad-hoc job import must carry.
var ImportRequired = []string{
	"job_key", "job_type", "delivery_address", "delivery_postcode", "delivery_date", "delivery_time_slot",
	"requires_fitter",
}

// jobLevelColumns must hold identical values on every row sharing a job
// key. Item columns are deliberately absent.
var jobLevelColumns = []string{
	"job_key", "job_type",
	"collection_address", "collection_postcode", "collection_contact", "collection_phone",
	"collection_date", "collection_time_slot",
	"delivery_address", "delivery_postcode", "delivery_contact", "delivery_phone",
	"delivery_date", "delivery_time_slot",
	"requires_fitter", "special_instructions",
}

// Options configures a parse.
type Options struct {
	Required []string
	Aliases  Aliases
}

// ParseResult is the outcome of a parse. On failure Lines is empty and
// Errors holds every problem found; there is no partial success.
type ParseResult struct {
	Status Status           `json:"status"`
	Lines  []model.PlanLine `json:"lines,omitempty"`
	Errors []model.RowError `json:"errors,omitempty"`
}

// RowsCount returns the number of lines produced.
func (r *ParseResult) RowsCount() int {
	return len(r.Lines)
}

// row is the decoding target for one data record. Numeric and boolean
// columns stay strings so bad values can fall back to defaults.
type row struct {
	JobKey              string `csv:"job_key"`
	JobType             string `csv:"job_type"`
	CollectionAddress   string `csv:"collection_address"`
	CollectionPostcode  string `csv:"collection_postcode"`
	CollectionContact   string `csv:"collection_contact"`
	CollectionPhone     string `csv:"collection_phone"`
	CollectionDate      string `csv:"collection_date"`
	CollectionTimeSlot  string `csv:"collection_time_slot"`
	DeliveryAddress     string `csv:"delivery_address"`
	DeliveryPostcode    string `csv:"delivery_postcode"`
	DeliveryContact     string `csv:"delivery_contact"`
	DeliveryPhone       string `csv:"delivery_phone"`
	DeliveryDate        string `csv:"delivery_date"`
	DeliveryTimeSlot    string `csv:"delivery_time_slot"`
	RequiresFitter      string `csv:"requires_fitter"`
	SpecialInstructions string `csv:"special_instructions"`
	ItemDescription     string `csv:"item_description"`
	ItemQuantity        string `csv:"item_quantity"`
	ItemWeightKg        string `csv:"item_weight_kg"`
	ItemDimensions      string `csv:"item_dimensions"`
}

func (r row) line(rowNumber int) model.PlanLine {
	return model.PlanLine{
		RowNumber:           rowNumber,
		JobKey:              r.JobKey,
		JobType:             r.JobType,
		CollectionAddress:   r.CollectionAddress,
		CollectionPostcode:  r.CollectionPostcode,
		CollectionContact:   r.CollectionContact,
		CollectionPhone:     r.CollectionPhone,
		CollectionDate:      r.CollectionDate,
		CollectionTimeSlot:  r.CollectionTimeSlot,
		DeliveryAddress:     r.DeliveryAddress,
		DeliveryPostcode:    r.DeliveryPostcode,
		DeliveryContact:     r.DeliveryContact,
		DeliveryPhone:       r.DeliveryPhone,
		DeliveryDate:        r.DeliveryDate,
		DeliveryTimeSlot:    r.DeliveryTimeSlot,
		RequiresFitter:      ParseBool(r.RequiresFitter),
		SpecialInstructions: r.SpecialInstructions,
		ItemDescription:     r.ItemDescription,
		ItemQuantity:        parseFloat(r.ItemQuantity, 1),
		ItemWeightKg:        parseFloat(r.ItemWeightKg, 0),
		ItemDimensions:      r.ItemDimensions,
	}
}

// parsedRow keeps the cleaned cells next to the line so job-level
// consistency is checked on the values exactly as uploaded.
type parsedRow struct {
	number int
	line   model.PlanLine
	cells  []string
}

// Parse parses raw delimited text.
func Parse(raw string, opts Options) *ParseResult {
	records, err := Records(raw)
	if err != nil {
		return failed(model.RowError{Row: 0, Error: fmt.Sprintf("malformed file: %v", err)})
	}
	return ParseRecords(records, opts)
}

// ParseRecords validates tokenized records (header first), groups them by
// job key and hashes each line. The header is row 1 and data rows are
// numbered from 2 in record order.
func ParseRecords(records [][]string, opts Options) *ParseResult {
	if len(records) < 2 {
		return failed(model.RowError{Row: 0, Error: ErrEmptyFile})
	}

	header := normalizeHeaderRow(records[0], opts.Aliases)
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	var missing []string
	for _, col := range opts.Required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return failed(model.RowError{
			Row:   0,
			Error: "missing required columns: " + strings.Join(missing, ", "),
		})
	}

	reader := &recordReader{records: records[1:], width: len(header)}
	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return failed(model.RowError{Row: 0, Error: fmt.Sprintf("malformed header: %v", err)})
	}

	var errs []model.RowError
	var rows []parsedRow

	for rowNumber := 2; ; rowNumber++ {
		var r row
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			errs = append(errs, model.RowError{Row: rowNumber, Error: fmt.Sprintf("unreadable row: %v", err)})
			continue
		}
		cells := dec.Record()

		if r.JobKey == "" {
			errs = append(errs, model.RowError{Row: rowNumber, Column: "job_key", Error: "missing required field job_key"})
			continue
		}
		for _, col := range opts.Required {
			if col == "job_key" {
				continue
			}
			if cells[index[col]] == "" {
				errs = append(errs, model.RowError{
					Row:    rowNumber,
					Column: col,
					Error:  "missing required field " + col,
				})
			}
		}

		rows = append(rows, parsedRow{
			number: rowNumber,
			line:   r.line(rowNumber),
			cells:  append([]string(nil), cells...),
		})
	}

	errs = append(errs, checkGroups(rows, index)...)
	if len(errs) > 0 {
		return &ParseResult{Status: StatusFailed, Errors: errs}
	}

	lines := make([]model.PlanLine, len(rows))
	for i, pr := range rows {
		line := pr.line
		line.LineHash = LineHash(line)
		lines[i] = line
	}
	return &ParseResult{Status: StatusSuccess, Lines: lines}
}

// checkGroups compares every job-level column of each later row in a
// job-key group against the group's first row.
func checkGroups(rows []parsedRow, index map[string]int) []model.RowError {
	first := make(map[string]parsedRow)
	var errs []model.RowError
	for _, pr := range rows {
		ref, ok := first[pr.line.JobKey]
		if !ok {
			first[pr.line.JobKey] = pr
			continue
		}
		for _, col := range jobLevelColumns {
			i, ok := index[col]
			if !ok {
				continue
			}
			if pr.cells[i] != ref.cells[i] {
				errs = append(errs, model.RowError{
					Row:    pr.number,
					Column: col,
					Error: fmt.Sprintf("job_key %s: %s differs from row %d (%q vs %q)",
						pr.line.JobKey, col, ref.number, pr.cells[i], ref.cells[i]),
				})
			}
		}
	}
	return errs
}

// GroupByJobKey groups lines by job key, preserving first-appearance order
// of keys and line order within each group.
func GroupByJobKey(lines []model.PlanLine) (keys []string, groups map[string][]model.PlanLine) {
	groups = make(map[string][]model.PlanLine)
	for _, l := range lines {
		if _, ok := groups[l.JobKey]; !ok {
			keys = append(keys, l.JobKey)
		}
		groups[l.JobKey] = append(groups[l.JobKey], l)
	}
	return keys, groups
}

// normalizeHeaderRow normalizes and alias-resolves header cells. Blank and
// repeated headers get placeholder names so their columns are ignored.
func normalizeHeaderRow(cells []string, aliases Aliases) []string {
	header := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, cell := range cells {
		h := aliases.Resolve(NormalizeHeader(cleanCell(cell)))
		if h == "" || seen[h] {
			h = fmt.Sprintf("_ignored_%d", i)
		}
		seen[h] = true
		header[i] = h
	}
	return header
}

func failed(errs ...model.RowError) *ParseResult {
	return &ParseResult{Status: StatusFailed, Errors: errs}
}

// ParseBool reads spreadsheet-style yes/no values. Anything unrecognized is
// false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "x":
		return true
	}
	return false
}

// parseFloat parses a numeric cell, falling back to def when the cell is
// empty, unparsable or not finite.
func parseFloat(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
