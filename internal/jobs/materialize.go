// Package jobs turns groups of plan lines into live operational jobs and
// runs ad-hoc job imports.
package jobs

import (
	"fmt"

	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/model"
)

// MaxJobNumberLength caps human-facing job numbers, counted in runes.
const MaxJobNumberLength = 50

// Job number prefixes by source.
const (
	PlanPrefix   = "PLN"
	ImportPrefix = "IMP"
)

// Ref identifies where a materialized job comes from.
type Ref struct {
	CustomerID    string
	PlanID        string
	PlanVersionID string
}

// Materialize builds a job from the lines of one job key. Job-level fields
// are taken from the first line; every line with an item description
// contributes one item. The caller sets ID, JobNumber and Source.
func Materialize(lines []model.PlanLine, ref Ref) model.Job {
	var first model.PlanLine
	if len(lines) > 0 {
		first = lines[0]
	}

	job := model.Job{
		CustomerID:          ref.CustomerID,
		PlanID:              ref.PlanID,
		PlanVersionID:       ref.PlanVersionID,
		JobKey:              first.JobKey,
		Source:              model.JobSourcePlan,
		JobType:             first.JobType,
		CollectionAddress:   first.CollectionAddress,
		CollectionPostcode:  first.CollectionPostcode,
		CollectionContact:   first.CollectionContact,
		CollectionPhone:     first.CollectionPhone,
		CollectionDate:      first.CollectionDate,
		CollectionTimeSlot:  first.CollectionTimeSlot,
		DeliveryAddress:     first.DeliveryAddress,
		DeliveryPostcode:    first.DeliveryPostcode,
		DeliveryContact:     first.DeliveryContact,
		DeliveryPhone:       first.DeliveryPhone,
		DeliveryDate:        first.DeliveryDate,
		DeliveryTimeSlot:    first.DeliveryTimeSlot,
		RequiresFitter:      first.RequiresFitter,
		SpecialInstructions: first.SpecialInstructions,
		Items:               Items(lines),
		OpsStatus:           model.OpsStatusUnallocated,
		CustomerStatus:      model.CustomerStatusScheduled,
	}
	return job
}

// Items collects the items of a job key's lines. A job always carries at
// least one item; lines without descriptions yield a single placeholder.
func Items(lines []model.PlanLine) []model.JobItem {
	var items []model.JobItem
	for _, l := range lines {
		if l.ItemDescription == "" {
			continue
		}
		items = append(items, model.JobItem{
			Description: l.ItemDescription,
			Quantity:    l.ItemQuantity,
			WeightKg:    l.ItemWeightKg,
			Dimensions:  l.ItemDimensions,
		})
	}
	if len(items) == 0 {
		items = []model.JobItem{{Quantity: 1}}
	}
	return items
}

// JobNumber formats "<prefix>-<first 8 of scope id>-<job_key>", cut to
// MaxJobNumberLength runes from the end.
func JobNumber(prefix, scopeID, jobKey string) string {
	n := []rune(fmt.Sprintf("%s-%s-%s", prefix, idgen.Short(scopeID, 8), jobKey))
	if len(n) > MaxJobNumberLength {
		n = n[:MaxJobNumberLength]
	}
	return string(n)
}
