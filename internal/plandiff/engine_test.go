package plandiff

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const planHeader = "job_key,job_type,delivery_address,delivery_postcode,delivery_contact,delivery_date,delivery_time_slot,item_description\n"

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newPlan(t *testing.T, st store.Store) *model.Plan {
	t.Helper()
	plan, err := st.CreatePlan(context.Background(), "cust-1", "Spring rollout")
	require.NoError(t, err)
	return plan
}

// upload stores a parsed version of the plan built from data rows.
func upload(t *testing.T, st store.Store, planID string, rows ...string) *model.PlanVersion {
	t.Helper()
	ctx := context.Background()
	v, err := st.CreatePlanVersion(ctx, planID, "plan.csv", "")
	require.NoError(t, err)

	res := planfile.Parse(planHeader+strings.Join(rows, "\n"), planfile.Options{Required: planfile.PlanRequired})
	require.Equal(t, planfile.StatusSuccess, res.Status, "%v", res.Errors)
	require.NoError(t, st.SaveParsedLines(ctx, v.ID, res.Lines))
	return v
}

func keysOf(items []model.PlanDiffItem, typ model.DiffType) []string {
	var keys []string
	for _, it := range items {
		if it.DiffType == typ {
			keys = append(keys, it.JobKey)
		}
	}
	return keys
}

func TestIndexByJobKey_LastWriteWins(t *testing.T) {
	a := baseLine()
	b := baseLine()
	b.ItemDescription = "Chair"
	c := baseLine()
	c.JobKey = "J2"

	m := IndexByJobKey([]model.PlanLine{a, c, b})
	assert.Len(t, m, 2)
	assert.Equal(t, "Chair", m["J1"].ItemDescription)
}

func TestClassify_Partition(t *testing.T) {
	mk := func(key, hash string) model.PlanLine {
		l := baseLine()
		l.JobKey = key
		l.LineHash = hash
		return l
	}
	from := IndexByJobKey([]model.PlanLine{mk("A", "1"), mk("B", "2"), mk("C", "3"), mk("D", "4")})
	to := IndexByJobKey([]model.PlanLine{mk("B", "2"), mk("C", "x"), mk("E", "5"), mk("F", "6")})

	items := Classify(from, to)

	assert.Equal(t, []string{"E", "F"}, keysOf(items, model.DiffTypeAdded))
	assert.Equal(t, []string{"C"}, keysOf(items, model.DiffTypeChanged))
	assert.Equal(t, []string{"A", "D"}, keysOf(items, model.DiffTypeCancelled))

	seen := map[string]int{}
	for _, it := range items {
		seen[it.JobKey]++
	}
	// Union minus the unchanged key B, each exactly once.
	assert.Equal(t, map[string]int{"A": 1, "C": 1, "D": 1, "E": 1, "F": 1}, seen)
	assert.Equal(t, model.DiffSummary{AddedCount: 2, ChangedCount: 1, CancelledCount: 2}, Summarize(items))
}

func TestClassify_Snapshots(t *testing.T) {
	before := baseLine()
	before.LineHash = "1"
	after := baseLine()
	after.LineHash = "2"
	after.DeliveryContact = "John"

	items := Classify(IndexByJobKey([]model.PlanLine{before}), IndexByJobKey([]model.PlanLine{after}))
	require.Len(t, items, 1)

	var got model.PlanLine
	require.NoError(t, json.Unmarshal(items[0].AfterSnapshot, &got))
	assert.Equal(t, "John", got.DeliveryContact)
	require.NoError(t, json.Unmarshal(items[0].BeforeSnapshot, &got))
	assert.Equal(t, "Jane", got.DeliveryContact)
	assert.Equal(t, model.ImpactHigh, items[0].ImpactLevel)
}

func TestCompute_FirstVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID,
		"J2,install,2 Side St,EF3 4GH,Ann,2026-01-02,pm,Bed",
		"J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa",
		"J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Chair",
	)

	diff, items, err := NewEngine(st).Compute(ctx, plan.ID, nil, v1.ID)
	require.NoError(t, err)

	assert.Nil(t, diff.FromVersionID)
	assert.Equal(t, model.DiffStatusNeedsCustomerReview, diff.Status)
	assert.Equal(t, model.DiffSummary{AddedCount: 2}, diff.Summary)
	assert.Equal(t, []string{"J1", "J2"}, keysOf(items, model.DiffTypeAdded))
	assert.Equal(t, "New job for Jane (AB1 2CD)", items[0].ChangeSummary)

	stored, err := st.ListDiffItems(ctx, diff.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	got, err := st.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusNeedsCustomerReview, got.Status)
}

func TestCompute_ScenarioC(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	v2 := upload(t, st, plan.ID,
		"J1,install,10 High St,AB1 9ZZ,Jane,2026-01-01,am,Sofa",
		"J2,install,2 Side St,EF3 4GH,Ann,2026-01-02,pm,Bed",
	)

	diff, items, err := NewEngine(st).Compute(ctx, plan.ID, &v1.ID, v2.ID)
	require.NoError(t, err)

	require.NotNil(t, diff.FromVersionID)
	assert.Equal(t, v1.ID, *diff.FromVersionID)
	assert.Equal(t, []string{"J2"}, keysOf(items, model.DiffTypeAdded))
	assert.Equal(t, []string{"J1"}, keysOf(items, model.DiffTypeChanged))
	assert.Empty(t, keysOf(items, model.DiffTypeCancelled))
	assert.Equal(t, "Address changed to 10 High St, AB1 9ZZ", items[1].ChangeSummary)
	assert.Equal(t, model.ImpactMedium, items[1].ImpactLevel)
}

func TestCompute_UnchangedHashIsNotChanged(t *testing.T) {
	st := newTestStore(t)
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	// Whitespace and case differences normalize to the same hash.
	v2 := upload(t, st, plan.ID, "J1,install,10 HIGH ST,ab12cd,Jane,2026-01-01,am,sofa")

	diff, items, err := NewEngine(st).Compute(context.Background(), plan.ID, &v1.ID, v2.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, model.DiffSummary{}, diff.Summary)
}

func TestCompute_Cancelled(t *testing.T) {
	st := newTestStore(t)
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID,
		"J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa",
		"J2,install,2 Side St,EF3 4GH,Ann,2026-01-02,pm,Bed",
	)
	v2 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")

	_, items, err := NewEngine(st).Compute(context.Background(), plan.ID, &v1.ID, v2.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.DiffTypeCancelled, items[0].DiffType)
	assert.Equal(t, "Job for Ann cancelled", items[0].ChangeSummary)
	assert.Equal(t, model.ImpactHigh, items[0].ImpactLevel)
	assert.Empty(t, items[0].AfterSnapshot)
}

func TestCompute_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	eng := NewEngine(st)

	first, _, err := eng.Compute(ctx, plan.ID, nil, v1.ID)
	require.NoError(t, err)
	second, items, err := eng.Compute(ctx, plan.ID, nil, v1.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, items, 1)

	stored, err := st.ListDiffItems(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestCompute_NilFromAddsEveryKeyAfterApply(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	v1 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	eng := NewEngine(st)

	first, _, err := eng.Compute(ctx, plan.ID, nil, v1.ID)
	require.NoError(t, err)
	require.NoError(t, st.TransitionDiffStatus(ctx, first.ID, model.DiffStatusNeedsCustomerReview, model.DiffStatusCustomerApproved))
	require.NoError(t, st.TransitionDiffStatus(ctx, first.ID, model.DiffStatusCustomerApproved, model.DiffStatusApplied))

	v2 := upload(t, st, plan.ID,
		"J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa",
		"J2,install,2 Side St,EF3 4GH,Ann,2026-01-02,pm,Bed",
	)
	diff, items, err := eng.Compute(ctx, plan.ID, nil, v2.ID)
	require.NoError(t, err)

	assert.Nil(t, diff.FromVersionID)
	assert.Equal(t, model.DiffSummary{AddedCount: 2}, diff.Summary)
	assert.Equal(t, []string{"J1", "J2"}, keysOf(items, model.DiffTypeAdded))
	assert.Len(t, items, 2)
}

func TestResolveBaseVersion(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	eng := NewEngine(st)

	base, err := eng.ResolveBaseVersion(ctx, plan.ID)
	require.NoError(t, err)
	assert.Nil(t, base)

	v1 := upload(t, st, plan.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	first, _, err := eng.Compute(ctx, plan.ID, nil, v1.ID)
	require.NoError(t, err)

	// Computed but not applied.
	base, err = eng.ResolveBaseVersion(ctx, plan.ID)
	require.NoError(t, err)
	assert.Nil(t, base)

	require.NoError(t, st.TransitionDiffStatus(ctx, first.ID, model.DiffStatusNeedsCustomerReview, model.DiffStatusCustomerApproved))
	require.NoError(t, st.TransitionDiffStatus(ctx, first.ID, model.DiffStatusCustomerApproved, model.DiffStatusApplied))

	base, err = eng.ResolveBaseVersion(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, base)
	assert.Equal(t, v1.ID, *base)
}

func TestCompute_VersionChecks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	plan := newPlan(t, st)
	other := newPlan(t, st)
	foreign := upload(t, st, other.ID, "J1,install,10 High St,AB1 2CD,Jane,2026-01-01,am,Sofa")
	eng := NewEngine(st)

	_, _, err := eng.Compute(ctx, plan.ID, nil, foreign.ID)
	assert.True(t, errors.Is(err, ErrVersionMismatch))

	pending, err := st.CreatePlanVersion(ctx, plan.ID, "plan.csv", "")
	require.NoError(t, err)
	_, _, err = eng.Compute(ctx, plan.ID, nil, pending.ID)
	assert.True(t, errors.Is(err, ErrNotParsed))

	_, _, err = eng.Compute(ctx, plan.ID, nil, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
