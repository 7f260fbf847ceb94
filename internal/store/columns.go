package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobplan/internal/model"
)

// Column lists and scanners shared by the Postgres and SQLite stores. Both
// drivers scan into the same Go types, so only placeholders differ.

type scannable interface {
	Scan(dest ...any) error
}

var planColumns = []string{"id", "customer_id", "name", "status", "created_at", "updated_at"}

func scanPlan(row scannable) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.CustomerID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

var versionColumns = []string{
	"id", "plan_id", "version_number", "source_file_name", "file_url",
	"parse_status", "rows_count", "parse_errors", "created_at", "updated_at",
}

func scanVersion(row scannable) (*model.PlanVersion, error) {
	var v model.PlanVersion
	var errsJSON []byte
	if err := row.Scan(&v.ID, &v.PlanID, &v.VersionNumber, &v.SourceFileName, &v.FileURL,
		&v.ParseStatus, &v.RowsCount, &errsJSON, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &v.ParseErrors); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal parse errors")
		}
	}
	return &v, nil
}

var lineColumns = []string{
	"id", "plan_version_id", "row_number", "job_key", "job_type",
	"collection_address", "collection_postcode", "collection_contact", "collection_phone",
	"collection_date", "collection_time_slot",
	"delivery_address", "delivery_postcode", "delivery_contact", "delivery_phone",
	"delivery_date", "delivery_time_slot",
	"requires_fitter", "special_instructions",
	"item_description", "item_quantity", "item_weight_kg", "item_dimensions",
	"line_hash",
}

func lineArgs(l model.PlanLine) []any {
	return []any{
		l.ID, l.PlanVersionID, l.RowNumber, l.JobKey, l.JobType,
		l.CollectionAddress, l.CollectionPostcode, l.CollectionContact, l.CollectionPhone,
		l.CollectionDate, l.CollectionTimeSlot,
		l.DeliveryAddress, l.DeliveryPostcode, l.DeliveryContact, l.DeliveryPhone,
		l.DeliveryDate, l.DeliveryTimeSlot,
		l.RequiresFitter, l.SpecialInstructions,
		l.ItemDescription, l.ItemQuantity, l.ItemWeightKg, l.ItemDimensions,
		l.LineHash,
	}
}

func scanLine(row scannable) (model.PlanLine, error) {
	var l model.PlanLine
	err := row.Scan(
		&l.ID, &l.PlanVersionID, &l.RowNumber, &l.JobKey, &l.JobType,
		&l.CollectionAddress, &l.CollectionPostcode, &l.CollectionContact, &l.CollectionPhone,
		&l.CollectionDate, &l.CollectionTimeSlot,
		&l.DeliveryAddress, &l.DeliveryPostcode, &l.DeliveryContact, &l.DeliveryPhone,
		&l.DeliveryDate, &l.DeliveryTimeSlot,
		&l.RequiresFitter, &l.SpecialInstructions,
		&l.ItemDescription, &l.ItemQuantity, &l.ItemWeightKg, &l.ItemDimensions,
		&l.LineHash,
	)
	return l, err
}

var diffColumns = []string{
	"id", "plan_id", "from_version_id", "to_version_id",
	"added_count", "changed_count", "cancelled_count",
	"status", "applied_count", "created_at", "updated_at",
}

func scanDiff(row scannable) (*model.PlanDiff, error) {
	var d model.PlanDiff
	if err := row.Scan(&d.ID, &d.PlanID, &d.FromVersionID, &d.ToVersionID,
		&d.Summary.AddedCount, &d.Summary.ChangedCount, &d.Summary.CancelledCount,
		&d.Status, &d.AppliedCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

var diffItemColumns = []string{
	"id", "plan_diff_id", "position", "job_key", "diff_type",
	"before_snapshot", "after_snapshot", "change_summary", "impact_level",
}

// diffItemSelect omits position, which only orders the items.
var diffItemSelect = []string{
	"id", "plan_diff_id", "job_key", "diff_type",
	"before_snapshot", "after_snapshot", "change_summary", "impact_level",
}

func scanDiffItem(row scannable) (model.PlanDiffItem, error) {
	var it model.PlanDiffItem
	var before, after []byte
	if err := row.Scan(&it.ID, &it.PlanDiffID, &it.JobKey, &it.DiffType,
		&before, &after, &it.ChangeSummary, &it.ImpactLevel); err != nil {
		return it, err
	}
	if len(before) > 0 {
		it.BeforeSnapshot = json.RawMessage(before)
	}
	if len(after) > 0 {
		it.AfterSnapshot = json.RawMessage(after)
	}
	return it, nil
}

var jobColumns = []string{
	"id", "job_number", "customer_id", "plan_id", "plan_version_id", "job_key", "source", "job_type",
	"collection_address", "collection_postcode", "collection_contact", "collection_phone",
	"collection_date", "collection_time_slot",
	"delivery_address", "delivery_postcode", "delivery_contact", "delivery_phone",
	"delivery_date", "delivery_time_slot",
	"requires_fitter", "special_instructions", "items",
	"ops_status", "customer_status", "created_at", "updated_at",
}

// jobArgs returns the values for jobColumns. items is the encoded item
// list in whatever form the driver expects.
func jobArgs(j *model.Job, items any) []any {
	return []any{
		j.ID, j.JobNumber, j.CustomerID, j.PlanID, j.PlanVersionID, j.JobKey, string(j.Source), j.JobType,
		j.CollectionAddress, j.CollectionPostcode, j.CollectionContact, j.CollectionPhone,
		j.CollectionDate, j.CollectionTimeSlot,
		j.DeliveryAddress, j.DeliveryPostcode, j.DeliveryContact, j.DeliveryPhone,
		j.DeliveryDate, j.DeliveryTimeSlot,
		j.RequiresFitter, j.SpecialInstructions, items,
		string(j.OpsStatus), string(j.CustomerStatus), j.CreatedAt, j.UpdatedAt,
	}
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var items []byte
	if err := row.Scan(
		&j.ID, &j.JobNumber, &j.CustomerID, &j.PlanID, &j.PlanVersionID, &j.JobKey, &j.Source, &j.JobType,
		&j.CollectionAddress, &j.CollectionPostcode, &j.CollectionContact, &j.CollectionPhone,
		&j.CollectionDate, &j.CollectionTimeSlot,
		&j.DeliveryAddress, &j.DeliveryPostcode, &j.DeliveryContact, &j.DeliveryPhone,
		&j.DeliveryDate, &j.DeliveryTimeSlot,
		&j.RequiresFitter, &j.SpecialInstructions, &items,
		&j.OpsStatus, &j.CustomerStatus, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &j.Items); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal job items")
		}
	}
	return &j, nil
}

var opsTaskColumns = []string{
	"id", "task_number", "job_id", "plan_diff_id", "type", "status",
	"title", "description", "resolution", "created_at",
}

func opsTaskArgs(t *model.OpsTask) []any {
	return []any{
		t.ID, t.TaskNumber, t.JobID, t.PlanDiffID, string(t.Type), string(t.Status),
		t.Title, t.Description, t.Resolution, t.CreatedAt,
	}
}

func scanOpsTask(row scannable) (model.OpsTask, error) {
	var t model.OpsTask
	err := row.Scan(&t.ID, &t.TaskNumber, &t.JobID, &t.PlanDiffID, &t.Type, &t.Status,
		&t.Title, &t.Description, &t.Resolution, &t.CreatedAt)
	return t, err
}

func cols(c []string) string {
	return strings.Join(c, ", ")
}

// dollarParams returns "$1, $2, ... $n".
func dollarParams(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(p, ", ")
}

// qmarkParams returns "?, ?, ... ?".
func qmarkParams(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, eris.Wrap(err, "store: marshal json")
}

// setClause returns "a = $k, b = $k+1, ..." for cols starting at $start.
func setClause(c []string, start int, dollar bool) string {
	parts := make([]string, len(c))
	for i, col := range c {
		if dollar {
			parts[i] = col + " = $" + strconv.Itoa(start+i)
		} else {
			parts[i] = col + " = ?"
		}
	}
	return strings.Join(parts, ", ")
}
