package plandiff

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/jobs"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/resilience"
	"github.com/sells-group/jobplan/internal/store"
)

// ErrPrecondition is returned when a diff is not in customer_approved
// status, including when another apply claimed it first.
var ErrPrecondition = errors.New("plandiff: diff is not approved")

// OutcomeStatus reports what happened to one diff item.
type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Skip reasons.
const (
	ReasonAlreadyMaterialized = "already materialized"
	ReasonNoLiveJob           = "no live job"
	ReasonNoLines             = "no lines for job key"
)

// Outcome is the result of applying one diff item.
type Outcome struct {
	JobKey   string         `json:"job_key"`
	DiffType model.DiffType `json:"diff_type"`
	Status   OutcomeStatus  `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	JobID    string         `json:"job_id,omitempty"`
}

// ApplyResult summarizes an applied diff. AppliedCount counts applied
// outcomes only.
type ApplyResult struct {
	DiffID       string    `json:"diffId"`
	AppliedCount int       `json:"appliedCount"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Applier applies customer-approved diffs to the live job set.
type Applier struct {
	Store store.Store
	Tasks idgen.Generator
	Retry resilience.RetryConfig
}

// NewApplier creates an Applier numbering ops tasks with the given
// generator.
func NewApplier(st store.Store, tasks idgen.Generator) *Applier {
	return &Applier{Store: st, Tasks: tasks, Retry: resilience.DefaultRetryConfig()}
}

// Apply claims an approved diff and applies each of its items in order.
// The diff moves to applied before any item is touched; concurrent or
// repeated calls fail with ErrPrecondition. If an item fails the claim is
// released so the diff can be applied again.
func (a *Applier) Apply(ctx context.Context, diffID string) (*ApplyResult, error) {
	diff, err := resilience.DoVal(ctx, a.retry("get_diff"), func(ctx context.Context) (*model.PlanDiff, error) {
		return a.Store.GetDiff(ctx, diffID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "plandiff: get diff %s", diffID)
	}
	if diff.Status != model.DiffStatusCustomerApproved {
		return nil, eris.Wrapf(ErrPrecondition, "plandiff: diff %s is %s", diffID, diff.Status)
	}

	plan, err := resilience.DoVal(ctx, a.retry("get_plan"), func(ctx context.Context) (*model.Plan, error) {
		return a.Store.GetPlan(ctx, diff.PlanID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "plandiff: get plan %s", diff.PlanID)
	}
	items, err := resilience.DoVal(ctx, a.retry("list_diff_items"), func(ctx context.Context) ([]model.PlanDiffItem, error) {
		return a.Store.ListDiffItems(ctx, diffID)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "plandiff: list items of diff %s", diffID)
	}

	err = a.Store.TransitionDiffStatus(ctx, diffID, model.DiffStatusCustomerApproved, model.DiffStatusApplied)
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, eris.Wrapf(ErrPrecondition, "plandiff: diff %s claimed by another apply", diffID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "plandiff: claim diff %s", diffID)
	}

	result := &ApplyResult{DiffID: diffID, Outcomes: make([]Outcome, 0, len(items))}
	for _, item := range items {
		out, err := a.ApplyItem(ctx, plan, diff, item)
		if err != nil {
			a.release(ctx, diffID)
			return nil, eris.Wrapf(err, "plandiff: apply %s item %s", item.DiffType, item.JobKey)
		}
		if out.Status == OutcomeApplied {
			result.AppliedCount++
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	// Every item has taken effect, so bookkeeping failures are logged
	// rather than reported as a failed apply.
	if err := a.Store.SetDiffAppliedCount(ctx, diffID, result.AppliedCount); err != nil {
		zap.L().Error("failed to record applied count",
			zap.String("diff_id", diffID), zap.Int("applied", result.AppliedCount), zap.Error(err))
	}
	if err := a.Store.UpdatePlanStatus(ctx, plan.ID, model.PlanStatusApplied); err != nil {
		zap.L().Error("failed to update plan status",
			zap.String("plan_id", plan.ID), zap.String("status", string(model.PlanStatusApplied)), zap.Error(err))
	}

	zap.L().Info("diff applied",
		zap.String("diff_id", diffID),
		zap.String("plan_id", plan.ID),
		zap.Int("items", len(items)),
		zap.Int("applied", result.AppliedCount),
	)
	return result, nil
}

func (a *Applier) release(ctx context.Context, diffID string) {
	err := a.Store.TransitionDiffStatus(ctx, diffID, model.DiffStatusApplied, model.DiffStatusCustomerApproved)
	if err != nil {
		zap.L().Error("failed to release diff claim", zap.String("diff_id", diffID), zap.Error(err))
	}
}

// ApplyItem applies one diff item. Items whose target job is missing, or
// already materialized, are skipped rather than failed.
func (a *Applier) ApplyItem(ctx context.Context, plan *model.Plan, diff *model.PlanDiff, item model.PlanDiffItem) (Outcome, error) {
	out := Outcome{JobKey: item.JobKey, DiffType: item.DiffType}
	switch item.DiffType {
	case model.DiffTypeAdded:
		return a.applyAdded(ctx, plan, diff, out)
	case model.DiffTypeChanged:
		return a.applyChanged(ctx, plan, diff, item, out)
	case model.DiffTypeCancelled:
		return a.applyCancelled(ctx, plan, out)
	default:
		return out, eris.Errorf("plandiff: unknown diff type %q", item.DiffType)
	}
}

func (a *Applier) applyAdded(ctx context.Context, plan *model.Plan, diff *model.PlanDiff, out Outcome) (Outcome, error) {
	existing, err := resilience.DoVal(ctx, a.retry("find_job_by_origin"), func(ctx context.Context) (*model.Job, error) {
		return a.Store.FindJobByOrigin(ctx, plan.ID, diff.ToVersionID, out.JobKey)
	})
	switch {
	case err == nil:
		return skipped(out, ReasonAlreadyMaterialized, existing.ID), nil
	case !errors.Is(err, store.ErrNotFound):
		return out, err
	}

	lines, err := a.lines(ctx, diff.ToVersionID, out.JobKey)
	if err != nil {
		return out, err
	}
	if len(lines) == 0 {
		return skipped(out, ReasonNoLines, ""), nil
	}

	job := jobs.Materialize(lines, jobs.Ref{
		CustomerID:    plan.CustomerID,
		PlanID:        plan.ID,
		PlanVersionID: diff.ToVersionID,
	})
	job.JobNumber = jobs.JobNumber(jobs.PlanPrefix, plan.ID, out.JobKey)
	if err := a.Store.CreateJob(ctx, &job); err != nil {
		return out, err
	}
	return applied(out, job.ID), nil
}

func (a *Applier) applyChanged(ctx context.Context, plan *model.Plan, diff *model.PlanDiff, item model.PlanDiffItem, out Outcome) (Outcome, error) {
	existing, err := a.liveJob(ctx, plan.ID, out.JobKey)
	if errors.Is(err, store.ErrNotFound) {
		return skipped(out, ReasonNoLiveJob, ""), nil
	}
	if err != nil {
		return out, err
	}

	lines, err := a.lines(ctx, diff.ToVersionID, out.JobKey)
	if err != nil {
		return out, err
	}
	if len(lines) == 0 {
		return skipped(out, ReasonNoLines, existing.ID), nil
	}

	job := jobs.Materialize(lines, jobs.Ref{
		CustomerID:    existing.CustomerID,
		PlanID:        plan.ID,
		PlanVersionID: diff.ToVersionID,
	})
	job.ID = existing.ID
	job.JobNumber = existing.JobNumber
	job.Source = existing.Source
	job.OpsStatus = existing.OpsStatus
	job.CustomerStatus = existing.CustomerStatus
	job.CreatedAt = existing.CreatedAt
	if err := a.Store.UpdateJob(ctx, &job); err != nil {
		return out, err
	}

	task := &model.OpsTask{
		TaskNumber:  a.Tasks.NewID(),
		JobID:       job.ID,
		PlanDiffID:  diff.ID,
		Type:        model.OpsTaskCustomerChange,
		Status:      model.OpsTaskResolved,
		Title:       fmt.Sprintf("Plan change for job %s", job.JobNumber),
		Description: item.ChangeSummary,
		Resolution:  "Applied from plan diff " + diff.ID,
	}
	if err := a.Store.CreateOpsTask(ctx, task); err != nil {
		return out, err
	}
	return applied(out, job.ID), nil
}

func (a *Applier) applyCancelled(ctx context.Context, plan *model.Plan, out Outcome) (Outcome, error) {
	existing, err := a.liveJob(ctx, plan.ID, out.JobKey)
	if errors.Is(err, store.ErrNotFound) {
		return skipped(out, ReasonNoLiveJob, ""), nil
	}
	if err != nil {
		return out, err
	}

	existing.OpsStatus = model.OpsStatusFailed
	existing.CustomerStatus = model.CustomerStatusCancelled
	if err := a.Store.UpdateJob(ctx, existing); err != nil {
		return out, err
	}
	return applied(out, existing.ID), nil
}

// liveJob returns the earliest created job of the plan for a job key.
func (a *Applier) liveJob(ctx context.Context, planID, jobKey string) (*model.Job, error) {
	return resilience.DoVal(ctx, a.retry("find_job_by_key"), func(ctx context.Context) (*model.Job, error) {
		return a.Store.FindJobByKey(ctx, planID, jobKey)
	})
}

func (a *Applier) lines(ctx context.Context, versionID, jobKey string) ([]model.PlanLine, error) {
	return resilience.DoVal(ctx, a.retry("list_plan_lines_by_key"), func(ctx context.Context) ([]model.PlanLine, error) {
		return a.Store.ListPlanLinesByKey(ctx, versionID, jobKey)
	})
}

func (a *Applier) retry(op string) resilience.RetryConfig {
	cfg := a.Retry
	cfg.OnRetry = resilience.RetryLogger("plandiff", op)
	return cfg
}

func applied(out Outcome, jobID string) Outcome {
	out.Status = OutcomeApplied
	out.JobID = jobID
	return out
}

func skipped(out Outcome, reason, jobID string) Outcome {
	out.Status = OutcomeSkipped
	out.Reason = reason
	out.JobID = jobID
	return out
}
