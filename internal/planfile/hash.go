package planfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/jobplan/internal/model"
)

// HashLength is the number of hex characters kept from the SHA-256 digest.
// Stored hashes are only comparable at the same length; changing it means
// re-deriving every stored line_hash.
const HashLength = 16

// hashedFields is the fixed, ordered field set fingerprinted by LineHash.
// Struct field order defines the serialization order.
type hashedFields struct {
	JobKey              string `json:"job_key"`
	JobType             string `json:"job_type"`
	CollectionAddress   string `json:"collection_address"`
	CollectionPostcode  string `json:"collection_postcode"`
	CollectionDate      string `json:"collection_date"`
	CollectionTimeSlot  string `json:"collection_time_slot"`
	DeliveryAddress     string `json:"delivery_address"`
	DeliveryPostcode    string `json:"delivery_postcode"`
	DeliveryContact     string `json:"delivery_contact"`
	DeliveryDate        string `json:"delivery_date"`
	DeliveryTimeSlot    string `json:"delivery_time_slot"`
	ItemDescription     string `json:"item_description"`
	SpecialInstructions string `json:"special_instructions"`
}

// LineHash fingerprints the business-relevant fields of a plan line.
// Phones, fitter flag, quantities, weights and dimensions are excluded, so
// lines differing only in those fields hash identically.
func LineHash(l model.PlanLine) string {
	fields := hashedFields{
		JobKey:              normalizeText(l.JobKey),
		JobType:             normalizeText(l.JobType),
		CollectionAddress:   normalizeText(l.CollectionAddress),
		CollectionPostcode:  normalizePostcode(l.CollectionPostcode),
		CollectionDate:      l.CollectionDate,
		CollectionTimeSlot:  normalizeText(l.CollectionTimeSlot),
		DeliveryAddress:     normalizeText(l.DeliveryAddress),
		DeliveryPostcode:    normalizePostcode(l.DeliveryPostcode),
		DeliveryContact:     normalizeText(l.DeliveryContact),
		DeliveryDate:        l.DeliveryDate,
		DeliveryTimeSlot:    normalizeText(l.DeliveryTimeSlot),
		ItemDescription:     normalizeText(l.ItemDescription),
		SpecialInstructions: normalizeText(l.SpecialInstructions),
	}

	// Marshal of a flat string struct cannot fail.
	data, _ := json.Marshal(fields)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

func normalizePostcode(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}
