package model

import (
	"encoding/json"
	"time"
)

// PlanStatus represents where a plan sits in the customer review cycle.
type PlanStatus string

const (
	PlanStatusDraft               PlanStatus = "draft"
	PlanStatusNeedsCustomerReview PlanStatus = "needs_customer_review"
	PlanStatusCustomerRejected    PlanStatus = "customer_rejected"
	PlanStatusApplied             PlanStatus = "applied"
)

// ParseStatus represents the outcome of parsing an uploaded plan file.
type ParseStatus string

const (
	ParseStatusPending ParseStatus = "pending"
	ParseStatusParsed  ParseStatus = "parsed"
	ParseStatusFailed  ParseStatus = "failed"
)

// Plan is a customer's multi-stop delivery plan. Each upload of the plan
// file becomes a new PlanVersion.
type Plan struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Name       string     `json:"name"`
	Status     PlanStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PlanVersion is one uploaded file instance of a plan.
type PlanVersion struct {
	ID             string      `json:"id"`
	PlanID         string      `json:"plan_id"`
	VersionNumber  int         `json:"version_number"`
	SourceFileName string      `json:"source_file_name"`
	FileURL        string      `json:"file_url"`
	ParseStatus    ParseStatus `json:"parse_status"`
	RowsCount      int         `json:"rows_count"`
	ParseErrors    []RowError  `json:"parse_errors,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RowError is a validation problem found while parsing an uploaded file.
// Row 0 refers to the file as a whole (empty file, missing headers).
type RowError struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Error  string `json:"error"`
}

// PlanLine is one normalized row of a PlanVersion. Lines sharing a JobKey
// describe a multi-item job and carry identical job-level fields.
type PlanLine struct {
	ID            string `json:"id,omitempty"`
	PlanVersionID string `json:"plan_version_id,omitempty"`
	RowNumber     int    `json:"row_number"`

	JobKey  string `json:"job_key"`
	JobType string `json:"job_type"`

	CollectionAddress  string `json:"collection_address"`
	CollectionPostcode string `json:"collection_postcode"`
	CollectionContact  string `json:"collection_contact"`
	CollectionPhone    string `json:"collection_phone"`
	CollectionDate     string `json:"collection_date"`
	CollectionTimeSlot string `json:"collection_time_slot"`

	DeliveryAddress  string `json:"delivery_address"`
	DeliveryPostcode string `json:"delivery_postcode"`
	DeliveryContact  string `json:"delivery_contact"`
	DeliveryPhone    string `json:"delivery_phone"`
	DeliveryDate     string `json:"delivery_date"`
	DeliveryTimeSlot string `json:"delivery_time_slot"`

	RequiresFitter      bool   `json:"requires_fitter"`
	SpecialInstructions string `json:"special_instructions"`

	ItemDescription string  `json:"item_description"`
	ItemQuantity    float64 `json:"item_quantity"`
	ItemWeightKg    float64 `json:"item_weight_kg"`
	ItemDimensions  string  `json:"item_dimensions"`

	LineHash string `json:"line_hash"`
}

// Snapshot serializes the line for storage on a PlanDiffItem.
func (l PlanLine) Snapshot() json.RawMessage {
	// PlanLine holds only strings, finite numbers and bools.
	data, _ := json.Marshal(l)
	return data
}
