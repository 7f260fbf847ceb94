package planfile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/jobplan/internal/model"
)

func baseLine() model.PlanLine {
	return model.PlanLine{
		JobKey:           "J1",
		JobType:          "install",
		DeliveryAddress:  "10 High St",
		DeliveryPostcode: "AB1 2CD",
		DeliveryContact:  "Jane Smith",
		DeliveryDate:     "2026-01-01",
		DeliveryTimeSlot: "am",
		ItemDescription:  "Sofa",
		ItemQuantity:     1,
	}
}

func TestLineHash_Deterministic(t *testing.T) {
	a := LineHash(baseLine())
	b := LineHash(baseLine())
	assert.Equal(t, a, b)
	assert.Len(t, a, HashLength)
	assert.Regexp(t, "^[0-9a-f]+$", a)
}

func TestLineHash_Normalization(t *testing.T) {
	l := baseLine()
	l.DeliveryAddress = "  10 HIGH st "
	l.DeliveryPostcode = "ab12cd"
	l.DeliveryContact = "JANE SMITH"
	l.JobType = "Install"
	assert.Equal(t, LineHash(baseLine()), LineHash(l))
}

func TestLineHash_UnicodeNFC(t *testing.T) {
	composed := baseLine()
	composed.DeliveryContact = "Ren\u00e9"
	decomposed := baseLine()
	decomposed.DeliveryContact = "Rene\u0301"
	assert.Equal(t, LineHash(composed), LineHash(decomposed))
}

func TestLineHash_ExcludedFields(t *testing.T) {
	l := baseLine()
	l.DeliveryPhone = "07700 900000"
	l.CollectionPhone = "01632 960000"
	l.RequiresFitter = true
	l.ItemQuantity = 7
	l.ItemWeightKg = 42.5
	l.ItemDimensions = "1x2x3"
	l.RowNumber = 9
	assert.Equal(t, LineHash(baseLine()), LineHash(l))
}

func TestLineHash_SensitiveFields(t *testing.T) {
	mutations := map[string]func(*model.PlanLine){
		"job_key":              func(l *model.PlanLine) { l.JobKey = "J2" },
		"job_type":             func(l *model.PlanLine) { l.JobType = "delivery" },
		"collection_address":   func(l *model.PlanLine) { l.CollectionAddress = "1 Depot Rd" },
		"collection_postcode":  func(l *model.PlanLine) { l.CollectionPostcode = "ZZ1 1ZZ" },
		"collection_date":      func(l *model.PlanLine) { l.CollectionDate = "2025-12-31" },
		"collection_time_slot": func(l *model.PlanLine) { l.CollectionTimeSlot = "pm" },
		"delivery_address":     func(l *model.PlanLine) { l.DeliveryAddress = "11 High St" },
		"delivery_postcode":    func(l *model.PlanLine) { l.DeliveryPostcode = "AB1 9ZZ" },
		"delivery_contact":     func(l *model.PlanLine) { l.DeliveryContact = "John Smith" },
		"delivery_date":        func(l *model.PlanLine) { l.DeliveryDate = "2026-01-02" },
		"delivery_time_slot":   func(l *model.PlanLine) { l.DeliveryTimeSlot = "pm" },
		"item_description":     func(l *model.PlanLine) { l.ItemDescription = "Chair" },
		"special_instructions": func(l *model.PlanLine) { l.SpecialInstructions = "Ring bell" },
	}

	base := LineHash(baseLine())
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			l := baseLine()
			mutate(&l)
			assert.NotEqual(t, base, LineHash(l))
		})
	}
}

func TestLineHash_DatesNotNormalized(t *testing.T) {
	l := baseLine()
	l.DeliveryDate = " 2026-01-01"
	assert.NotEqual(t, LineHash(baseLine()), LineHash(l))
}
