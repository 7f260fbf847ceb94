package model

import "time"

// OpsStatus is the operations-side state of a job.
type OpsStatus string

const (
	OpsStatusUnallocated OpsStatus = "unallocated"
	OpsStatusAllocated   OpsStatus = "allocated"
	OpsStatusDelivered   OpsStatus = "delivered"
	OpsStatusFailed      OpsStatus = "failed"
)

// CustomerStatus is the state of a job as shown to the customer.
type CustomerStatus string

const (
	CustomerStatusScheduled CustomerStatus = "scheduled"
	CustomerStatusCancelled CustomerStatus = "cancelled"
)

// JobSource records how a job entered the system.
type JobSource string

const (
	JobSourcePlan   JobSource = "plan"
	JobSourceImport JobSource = "import"
)

// JobItem is one item carried or installed on a job.
type JobItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	WeightKg    float64 `json:"weight_kg"`
	Dimensions  string  `json:"dimensions"`
}

// Job is the live operational entity drivers and fitters are allocated to.
// Plan-sourced jobs are identified by (PlanID, PlanVersionID, JobKey).
type Job struct {
	ID            string    `json:"id"`
	JobNumber     string    `json:"job_number"`
	CustomerID    string    `json:"customer_id"`
	PlanID        string    `json:"plan_id,omitempty"`
	PlanVersionID string    `json:"plan_version_id,omitempty"`
	JobKey        string    `json:"job_key"`
	Source        JobSource `json:"source"`
	JobType       string    `json:"job_type"`

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

	RequiresFitter      bool      `json:"requires_fitter"`
	SpecialInstructions string    `json:"special_instructions"`
	Items               []JobItem `json:"items"`

	OpsStatus      OpsStatus      `json:"ops_status"`
	CustomerStatus CustomerStatus `json:"customer_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// OpsTaskType categorizes operational work items.
type OpsTaskType string

const (
	OpsTaskCustomerChange OpsTaskType = "customer_change"
)

// OpsTaskStatus is the lifecycle state of an OpsTask.
type OpsTaskStatus string

const (
	OpsTaskOpen     OpsTaskStatus = "open"
	OpsTaskResolved OpsTaskStatus = "resolved"
)

// OpsTask is an audit or work item raised against a job.
type OpsTask struct {
	ID          string        `json:"id"`
	TaskNumber  string        `json:"task_number"`
	JobID       string        `json:"job_id"`
	PlanDiffID  string        `json:"plan_diff_id,omitempty"`
	Type        OpsTaskType   `json:"type"`
	Status      OpsTaskStatus `json:"status"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Resolution  string        `json:"resolution"`
	CreatedAt   time.Time     `json:"created_at"`
}
