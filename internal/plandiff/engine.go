// Package plandiff compares plan versions by job key and applies approved
// diffs to the live job set.
package plandiff

import (
	"context"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/resilience"
	"github.com/sells-group/jobplan/internal/store"
)

var (
	// ErrVersionMismatch is returned when a version does not belong to the
	// plan being diffed.
	ErrVersionMismatch = errors.New("plandiff: version does not belong to plan")

	// ErrNotParsed is returned when diffing a version whose file has not
	// been parsed successfully.
	ErrNotParsed = errors.New("plandiff: version not parsed")
)

// Engine computes and stores plan diffs.
type Engine struct {
	Store store.Store
	Retry resilience.RetryConfig
}

// NewEngine creates an Engine with default read retries.
func NewEngine(st store.Store) *Engine {
	return &Engine{Store: st, Retry: resilience.DefaultRetryConfig()}
}

// Compute diffs toVersionID against fromVersionID. A nil fromVersionID
// is an empty line set, so every line of the to version is added.
// Computing a diff that already exists returns the stored diff and items
// unchanged.
func (e *Engine) Compute(ctx context.Context, planID string, fromVersionID *string, toVersionID string) (*model.PlanDiff, []model.PlanDiffItem, error) {
	if err := e.checkVersion(ctx, planID, toVersionID); err != nil {
		return nil, nil, err
	}
	if fromVersionID != nil {
		if err := e.checkVersion(ctx, planID, *fromVersionID); err != nil {
			return nil, nil, err
		}
	}

	fromLines, toLines, err := e.loadLines(ctx, fromVersionID, toVersionID)
	if err != nil {
		return nil, nil, err
	}

	fromID := ""
	if fromVersionID != nil {
		fromID = *fromVersionID
	}
	diff := &model.PlanDiff{
		ID:            idgen.DiffID(planID, fromID, toVersionID),
		PlanID:        planID,
		FromVersionID: fromVersionID,
		ToVersionID:   toVersionID,
		Status:        model.DiffStatusNeedsCustomerReview,
	}
	items := Classify(IndexByJobKey(fromLines), IndexByJobKey(toLines))
	diff.Summary = Summarize(items)

	err = e.Store.CreateDiff(ctx, diff, items)
	if errors.Is(err, store.ErrAlreadyExists) {
		zap.L().Info("diff already computed", zap.String("diff_id", diff.ID))
		return e.load(ctx, diff.ID)
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "plandiff: store diff")
	}

	if err := e.Store.UpdatePlanStatus(ctx, planID, model.PlanStatusNeedsCustomerReview); err != nil {
		return nil, nil, eris.Wrap(err, "plandiff: update plan status")
	}

	zap.L().Info("diff computed",
		zap.String("diff_id", diff.ID),
		zap.String("plan_id", planID),
		zap.Int("added", diff.Summary.AddedCount),
		zap.Int("changed", diff.Summary.ChangedCount),
		zap.Int("cancelled", diff.Summary.CancelledCount),
	)
	return diff, items, nil
}

// ResolveBaseVersion returns the to version of the plan's last applied
// diff, or nil when nothing has been applied yet.
func (e *Engine) ResolveBaseVersion(ctx context.Context, planID string) (*string, error) {
	last, err := resilience.DoVal(ctx, e.retry("latest_applied_diff"), func(ctx context.Context) (*model.PlanDiff, error) {
		return e.Store.LatestAppliedDiff(ctx, planID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "plandiff: resolve base version of plan %s", planID)
	}
	return &last.ToVersionID, nil
}

func (e *Engine) checkVersion(ctx context.Context, planID, versionID string) error {
	version, err := resilience.DoVal(ctx, e.retry("get_plan_version"), func(ctx context.Context) (*model.PlanVersion, error) {
		return e.Store.GetPlanVersion(ctx, versionID)
	})
	if err != nil {
		return eris.Wrapf(err, "plandiff: get version %s", versionID)
	}
	if version.PlanID != planID {
		return eris.Wrapf(ErrVersionMismatch, "plandiff: version %s", versionID)
	}
	if version.ParseStatus != model.ParseStatusParsed {
		return eris.Wrapf(ErrNotParsed, "plandiff: version %s is %s", versionID, version.ParseStatus)
	}
	return nil
}

// loadLines fetches both line sets concurrently. A nil from version yields
// no from lines.
func (e *Engine) loadLines(ctx context.Context, fromVersionID *string, toVersionID string) (from, to []model.PlanLine, err error) {
	g, gctx := errgroup.WithContext(ctx)
	if fromVersionID != nil {
		g.Go(func() error {
			lines, err := e.listLines(gctx, *fromVersionID)
			from = lines
			return err
		})
	}
	g.Go(func() error {
		lines, err := e.listLines(gctx, toVersionID)
		to = lines
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (e *Engine) listLines(ctx context.Context, versionID string) ([]model.PlanLine, error) {
	lines, err := resilience.DoVal(ctx, e.retry("list_plan_lines"), func(ctx context.Context) ([]model.PlanLine, error) {
		return e.Store.ListPlanLines(ctx, versionID)
	})
	return lines, eris.Wrapf(err, "plandiff: list lines of version %s", versionID)
}

func (e *Engine) load(ctx context.Context, diffID string) (*model.PlanDiff, []model.PlanDiffItem, error) {
	diff, err := e.Store.GetDiff(ctx, diffID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "plandiff: get diff %s", diffID)
	}
	items, err := e.Store.ListDiffItems(ctx, diffID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "plandiff: list items of diff %s", diffID)
	}
	return diff, items, nil
}

// retry returns the read retry config tagged for logging. Only transient
// errors are retried, so not-found results return immediately.
func (e *Engine) retry(op string) resilience.RetryConfig {
	cfg := e.Retry
	cfg.OnRetry = resilience.RetryLogger("plandiff", op)
	return cfg
}

// IndexByJobKey folds lines into a map keyed by job key. Lines later in
// the slice overwrite earlier ones, so a multi-item job is represented by
// its last line.
func IndexByJobKey(lines []model.PlanLine) map[string]model.PlanLine {
	m := make(map[string]model.PlanLine, len(lines))
	for _, l := range lines {
		m[l.JobKey] = l
	}
	return m
}

// Classify partitions the union of job keys into added, changed and
// cancelled items. Membership and line hashes alone decide the type; each
// group is sorted by job key.
func Classify(from, to map[string]model.PlanLine) []model.PlanDiffItem {
	var added, changed, cancelled []model.PlanDiffItem

	for _, key := range sortedKeys(to) {
		after := to[key]
		before, ok := from[key]
		switch {
		case !ok:
			summary, impact := addedSummary(after)
			added = append(added, model.PlanDiffItem{
				JobKey:        key,
				DiffType:      model.DiffTypeAdded,
				AfterSnapshot: after.Snapshot(),
				ChangeSummary: summary,
				ImpactLevel:   impact,
			})
		case before.LineHash != after.LineHash:
			summary, impact := changedSummary(before, after)
			changed = append(changed, model.PlanDiffItem{
				JobKey:         key,
				DiffType:       model.DiffTypeChanged,
				BeforeSnapshot: before.Snapshot(),
				AfterSnapshot:  after.Snapshot(),
				ChangeSummary:  summary,
				ImpactLevel:    impact,
			})
		}
	}
	for _, key := range sortedKeys(from) {
		if _, ok := to[key]; ok {
			continue
		}
		before := from[key]
		summary, impact := cancelledSummary(before)
		cancelled = append(cancelled, model.PlanDiffItem{
			JobKey:         key,
			DiffType:       model.DiffTypeCancelled,
			BeforeSnapshot: before.Snapshot(),
			ChangeSummary:  summary,
			ImpactLevel:    impact,
		})
	}

	items := make([]model.PlanDiffItem, 0, len(added)+len(changed)+len(cancelled))
	items = append(items, added...)
	items = append(items, changed...)
	return append(items, cancelled...)
}

// Summarize counts items per diff type.
func Summarize(items []model.PlanDiffItem) model.DiffSummary {
	var s model.DiffSummary
	for _, it := range items {
		switch it.DiffType {
		case model.DiffTypeAdded:
			s.AddedCount++
		case model.DiffTypeChanged:
			s.ChangedCount++
		case model.DiffTypeCancelled:
			s.CancelledCount++
		}
	}
	return s
}

func sortedKeys(m map[string]model.PlanLine) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
