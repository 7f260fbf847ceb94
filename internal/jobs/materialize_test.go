package jobs

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/jobplan/internal/model"
)

func line(jobKey, item string) model.PlanLine {
	return model.PlanLine{
		JobKey:           jobKey,
		JobType:          "install",
		DeliveryAddress:  "10 High St",
		DeliveryPostcode: "AB1 2CD",
		DeliveryContact:  "Jane",
		DeliveryDate:     "2026-01-01",
		DeliveryTimeSlot: "am",
		RequiresFitter:   true,
		ItemDescription:  item,
		ItemQuantity:     2,
		ItemWeightKg:     12.5,
		ItemDimensions:   "1x1x1",
	}
}

func TestMaterialize_CopiesJobFieldsAndItems(t *testing.T) {
	lines := []model.PlanLine{line("J1", "Sofa"), line("J1", "Chair")}
	ref := Ref{CustomerID: "cust-1", PlanID: "plan-1", PlanVersionID: "v1"}

	job := Materialize(lines, ref)

	assert.Equal(t, "cust-1", job.CustomerID)
	assert.Equal(t, "plan-1", job.PlanID)
	assert.Equal(t, "v1", job.PlanVersionID)
	assert.Equal(t, "J1", job.JobKey)
	assert.Equal(t, "install", job.JobType)
	assert.Equal(t, "Jane", job.DeliveryContact)
	assert.True(t, job.RequiresFitter)
	assert.Equal(t, model.OpsStatusUnallocated, job.OpsStatus)
	assert.Equal(t, model.CustomerStatusScheduled, job.CustomerStatus)
	assert.Equal(t, []model.JobItem{
		{Description: "Sofa", Quantity: 2, WeightKg: 12.5, Dimensions: "1x1x1"},
		{Description: "Chair", Quantity: 2, WeightKg: 12.5, Dimensions: "1x1x1"},
	}, job.Items)
}

func TestMaterialize_PlaceholderItem(t *testing.T) {
	job := Materialize([]model.PlanLine{line("J1", ""), line("J1", "")}, Ref{})
	assert.Equal(t, []model.JobItem{{Description: "", Quantity: 1, WeightKg: 0, Dimensions: ""}}, job.Items)
}

func TestMaterialize_SkipsBlankItemLines(t *testing.T) {
	job := Materialize([]model.PlanLine{line("J1", ""), line("J1", "Bed")}, Ref{})
	assert.Len(t, job.Items, 1)
	assert.Equal(t, "Bed", job.Items[0].Description)
}

func TestJobNumber(t *testing.T) {
	assert.Equal(t, "PLN-6f1c9a52-J1", JobNumber(PlanPrefix, "6f1c9a52-3d7e-4b8a-9c11-2f5e8d0a7b43", "J1"))
	assert.Equal(t, "IMP-batch-J1", JobNumber(ImportPrefix, "batch", "J1"))
}

func TestJobNumber_Truncated(t *testing.T) {
	key := strings.Repeat("é", 60)
	n := JobNumber(PlanPrefix, "6f1c9a52-3d7e", key)

	assert.Equal(t, MaxJobNumberLength, utf8.RuneCountInString(n))
	assert.True(t, strings.HasPrefix(n, "PLN-6f1c9a52-é"))
}
