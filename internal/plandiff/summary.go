package plandiff

import (
	"fmt"
	"strings"

	"github.com/sells-group/jobplan/internal/model"
)

// addedSummary describes a job key present only in the new version.
func addedSummary(to model.PlanLine) (string, model.ImpactLevel) {
	return fmt.Sprintf("New job for %s (%s)", to.DeliveryContact, to.DeliveryPostcode), model.ImpactMedium
}

// cancelledSummary describes a job key dropped from the new version.
func cancelledSummary(from model.PlanLine) (string, model.ImpactLevel) {
	return fmt.Sprintf("Job for %s cancelled", from.DeliveryContact), model.ImpactHigh
}

// changedSummary lists the human-facing fields that differ between two
// lines of the same job key. Recipient and date changes are high impact.
func changedSummary(from, to model.PlanLine) (string, model.ImpactLevel) {
	var parts []string
	if from.DeliveryContact != to.DeliveryContact {
		parts = append(parts, fmt.Sprintf("Recipient changed from %s to %s", from.DeliveryContact, to.DeliveryContact))
	}
	if from.DeliveryAddress != to.DeliveryAddress || from.DeliveryPostcode != to.DeliveryPostcode {
		parts = append(parts, fmt.Sprintf("Address changed to %s, %s", to.DeliveryAddress, to.DeliveryPostcode))
	}
	if from.DeliveryDate != to.DeliveryDate {
		parts = append(parts, fmt.Sprintf("Date changed from %s to %s", from.DeliveryDate, to.DeliveryDate))
	}
	if from.DeliveryTimeSlot != to.DeliveryTimeSlot {
		parts = append(parts, fmt.Sprintf("Time slot changed from %s to %s", from.DeliveryTimeSlot, to.DeliveryTimeSlot))
	}
	if from.CollectionDate != to.CollectionDate {
		parts = append(parts, fmt.Sprintf("Collection date changed from %s to %s", from.CollectionDate, to.CollectionDate))
	}
	if from.ItemDescription != to.ItemDescription {
		parts = append(parts, fmt.Sprintf("Items changed from %s to %s", from.ItemDescription, to.ItemDescription))
	}

	if len(parts) == 0 {
		return "Job details updated", model.ImpactMedium
	}

	impact := model.ImpactMedium
	for _, p := range parts {
		if strings.Contains(p, "Recipient") || strings.Contains(p, "Date") {
			impact = model.ImpactHigh
			break
		}
	}
	return strings.Join(parts, "; "), impact
}
