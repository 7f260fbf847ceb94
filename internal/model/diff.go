package model

import (
	"encoding/json"
	"time"
)

// DiffStatus tracks a PlanDiff through review and apply. Transitions only
// move forward: review -> approved|rejected, approved -> applied.
type DiffStatus string

const (
	DiffStatusNeedsCustomerReview DiffStatus = "needs_customer_review"
	DiffStatusCustomerApproved    DiffStatus = "customer_approved"
	DiffStatusCustomerRejected    DiffStatus = "customer_rejected"
	DiffStatusApplied             DiffStatus = "applied"
)

// DiffType classifies a job key within a PlanDiff.
type DiffType string

const (
	DiffTypeAdded     DiffType = "added"
	DiffTypeChanged   DiffType = "changed"
	DiffTypeCancelled DiffType = "cancelled"
)

// ImpactLevel signals how disruptive a diff item is to operations.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "LOW"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactHigh   ImpactLevel = "HIGH"
)

// DiffSummary holds the per-type counts of a PlanDiff.
type DiffSummary struct {
	AddedCount     int `json:"added_count"`
	ChangedCount   int `json:"changed_count"`
	CancelledCount int `json:"cancelled_count"`
}

// PlanDiff is one comparison between two versions of the same plan.
// FromVersionID is nil when diffing against an empty line set.
type PlanDiff struct {
	ID            string      `json:"id"`
	PlanID        string      `json:"plan_id"`
	FromVersionID *string     `json:"from_version_id,omitempty"`
	ToVersionID   string      `json:"to_version_id"`
	Summary       DiffSummary `json:"summary"`
	Status        DiffStatus  `json:"status"`
	AppliedCount  int         `json:"applied_count"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// PlanDiffItem is the classification of one job key within a PlanDiff.
type PlanDiffItem struct {
	ID             string          `json:"id"`
	PlanDiffID     string          `json:"plan_diff_id"`
	JobKey         string          `json:"job_key"`
	DiffType       DiffType        `json:"diff_type"`
	BeforeSnapshot json.RawMessage `json:"before_snapshot,omitempty"`
	AfterSnapshot  json.RawMessage `json:"after_snapshot,omitempty"`
	ChangeSummary  string          `json:"change_summary"`
	ImpactLevel    ImpactLevel     `json:"impact_level"`
}
