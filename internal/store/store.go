// Package store persists plans, plan versions, diffs, jobs and ops tasks.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/jobplan/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStatusConflict is returned when a conditional status transition
	// finds the entity in a different status than expected.
	ErrStatusConflict = errors.New("store: status conflict")

	// ErrAlreadyExists is returned when inserting an entity whose
	// deterministic ID is already taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// JobFilter specifies criteria for listing jobs. Empty fields match all.
type JobFilter struct {
	CustomerID     string               `json:"customer_id,omitempty"`
	PlanID         string               `json:"plan_id,omitempty"`
	JobKey         string               `json:"job_key,omitempty"`
	Source         model.JobSource      `json:"source,omitempty"`
	CustomerStatus model.CustomerStatus `json:"customer_status,omitempty"`
	Limit          int                  `json:"limit,omitempty"`
}

// Store defines the persistence contract of the plan pipeline.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, customerID, name string) (*model.Plan, error)
	GetPlan(ctx context.Context, planID string) (*model.Plan, error)
	UpdatePlanStatus(ctx context.Context, planID string, status model.PlanStatus) error

	// Versions and lines
	CreatePlanVersion(ctx context.Context, planID, sourceFileName, fileURL string) (*model.PlanVersion, error)
	GetPlanVersion(ctx context.Context, versionID string) (*model.PlanVersion, error)
	ListPlanVersions(ctx context.Context, planID string) ([]model.PlanVersion, error)
	// SaveParsedLines stores the lines and marks the version parsed in one
	// transaction.
	SaveParsedLines(ctx context.Context, versionID string, lines []model.PlanLine) error
	MarkParseFailed(ctx context.Context, versionID string, errs []model.RowError) error
	ListPlanLines(ctx context.Context, versionID string) ([]model.PlanLine, error)
	ListPlanLinesByKey(ctx context.Context, versionID, jobKey string) ([]model.PlanLine, error)

	// Diffs
	// CreateDiff stores the diff and its items in one transaction. It
	// returns ErrAlreadyExists when a diff with the same ID is stored.
	CreateDiff(ctx context.Context, diff *model.PlanDiff, items []model.PlanDiffItem) error
	GetDiff(ctx context.Context, diffID string) (*model.PlanDiff, error)
	ListDiffItems(ctx context.Context, diffID string) ([]model.PlanDiffItem, error)
	// TransitionDiffStatus moves a diff from one status to another only if
	// it is currently in from; otherwise it returns ErrStatusConflict.
	TransitionDiffStatus(ctx context.Context, diffID string, from, to model.DiffStatus) error
	SetDiffAppliedCount(ctx context.Context, diffID string, n int) error
	// LatestAppliedDiff returns the most recently applied diff of a plan.
	LatestAppliedDiff(ctx context.Context, planID string) (*model.PlanDiff, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	CreateJobs(ctx context.Context, jobs []model.Job) (int, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	// FindJobByOrigin returns the job materialized from a specific plan
	// version and job key.
	FindJobByOrigin(ctx context.Context, planID, versionID, jobKey string) (*model.Job, error)
	// FindJobByKey returns the live job of a plan with the job key,
	// whatever version it came from: the newest job not cancelled, or the
	// newest cancelled one when every match is cancelled.
	FindJobByKey(ctx context.Context, planID, jobKey string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Ops tasks
	CreateOpsTask(ctx context.Context, task *model.OpsTask) error
	ListOpsTasks(ctx context.Context, jobID string) ([]model.OpsTask, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
