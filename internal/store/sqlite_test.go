package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobplan/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedVersion(t *testing.T, st *SQLiteStore) (*model.Plan, *model.PlanVersion) {
	t.Helper()
	ctx := context.Background()
	plan, err := st.CreatePlan(ctx, "cust-1", "Spring rollout")
	require.NoError(t, err)
	v, err := st.CreatePlanVersion(ctx, plan.ID, "plan.csv", "https://files.example.com/plan.csv")
	require.NoError(t, err)
	return plan, v
}

func testLine(jobKey string, row int) model.PlanLine {
	return model.PlanLine{
		RowNumber:        row,
		JobKey:           jobKey,
		JobType:          "install",
		DeliveryAddress:  "10 High St",
		DeliveryPostcode: "AB1 2CD",
		DeliveryContact:  "Jane",
		DeliveryDate:     "2026-01-01",
		DeliveryTimeSlot: "am",
		RequiresFitter:   true,
		ItemDescription:  "Sofa",
		ItemQuantity:     2,
		ItemWeightKg:     30.5,
		LineHash:         "hash-" + jobKey,
	}
}

func TestSQLite_Plan_CreateGetUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	plan, err := st.CreatePlan(ctx, "cust-1", "Spring rollout")
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusDraft, plan.Status)

	require.NoError(t, st.UpdatePlanStatus(ctx, plan.ID, model.PlanStatusNeedsCustomerReview))

	got, err := st.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, model.PlanStatusNeedsCustomerReview, got.Status)
}

func TestSQLite_Plan_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetPlan(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = st.UpdatePlanStatus(ctx, "missing", model.PlanStatusApplied)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_VersionNumbersIncrement(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	plan, v1 := seedVersion(t, st)
	v2, err := st.CreatePlanVersion(ctx, plan.ID, "plan-v2.csv", "")
	require.NoError(t, err)

	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, 2, v2.VersionNumber)

	other, err := st.CreatePlan(ctx, "cust-2", "Other")
	require.NoError(t, err)
	ov, err := st.CreatePlanVersion(ctx, other.ID, "x.csv", "")
	require.NoError(t, err)
	assert.Equal(t, 1, ov.VersionNumber)

	versions, err := st.ListPlanVersions(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v1.ID, versions[0].ID)
	assert.Equal(t, model.ParseStatusPending, versions[0].ParseStatus)
}

func TestSQLite_SaveParsedLines(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, v := seedVersion(t, st)

	lines := []model.PlanLine{testLine("J2", 2), testLine("J1", 3), testLine("J2", 4)}
	require.NoError(t, st.SaveParsedLines(ctx, v.ID, lines))

	got, err := st.GetPlanVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusParsed, got.ParseStatus)
	assert.Equal(t, 3, got.RowsCount)
	assert.Empty(t, got.ParseErrors)

	all, err := st.ListPlanLines(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{all[0].RowNumber, all[1].RowNumber, all[2].RowNumber})
	assert.Equal(t, v.ID, all[0].PlanVersionID)
	assert.True(t, all[0].RequiresFitter)
	assert.Equal(t, 30.5, all[0].ItemWeightKg)
	assert.NotEmpty(t, all[0].ID)

	j2, err := st.ListPlanLinesByKey(ctx, v.ID, "J2")
	require.NoError(t, err)
	assert.Len(t, j2, 2)

	// A parsed version is immutable.
	err = st.SaveParsedLines(ctx, v.ID, lines[:1])
	assert.True(t, errors.Is(err, ErrStatusConflict))
	err = st.MarkParseFailed(ctx, v.ID, []model.RowError{{Row: 0, Error: "empty"}})
	assert.True(t, errors.Is(err, ErrStatusConflict))

	again, err := st.ListPlanLines(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, all, again)
	got, err = st.GetPlanVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusParsed, got.ParseStatus)
	assert.Equal(t, 3, got.RowsCount)
}

func TestSQLite_SaveParsedLines_UnknownVersionRollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedVersion(t, st)

	err := st.SaveParsedLines(ctx, "missing", []model.PlanLine{testLine("J1", 2)})
	assert.True(t, errors.Is(err, ErrNotFound))

	lines, err := st.ListPlanLines(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSQLite_MarkParseFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, v := seedVersion(t, st)

	rowErrs := []model.RowError{{Row: 2, Column: "delivery_postcode", Error: "missing required field delivery_postcode"}}
	require.NoError(t, st.MarkParseFailed(ctx, v.ID, rowErrs))

	got, err := st.GetPlanVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusFailed, got.ParseStatus)
	assert.Equal(t, rowErrs, got.ParseErrors)

	// A failed version can be parsed again.
	require.NoError(t, st.SaveParsedLines(ctx, v.ID, []model.PlanLine{testLine("J1", 2)}))
	got, err = st.GetPlanVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusParsed, got.ParseStatus)
	assert.Empty(t, got.ParseErrors)

	assert.True(t, errors.Is(st.MarkParseFailed(ctx, "missing", rowErrs), ErrNotFound))
}

func seedDiff(t *testing.T, st *SQLiteStore) (*model.PlanDiff, []model.PlanDiffItem) {
	t.Helper()
	ctx := context.Background()
	plan, v1 := seedVersion(t, st)
	v2, err := st.CreatePlanVersion(ctx, plan.ID, "v2.csv", "")
	require.NoError(t, err)

	from := v1.ID
	diff := &model.PlanDiff{
		ID:            "diff-1",
		PlanID:        plan.ID,
		FromVersionID: &from,
		ToVersionID:   v2.ID,
		Summary:       model.DiffSummary{AddedCount: 1, ChangedCount: 1},
		Status:        model.DiffStatusNeedsCustomerReview,
	}
	items := []model.PlanDiffItem{
		{JobKey: "J2", DiffType: model.DiffTypeAdded, AfterSnapshot: testLine("J2", 3).Snapshot(),
			ChangeSummary: "New job for Jane (AB1 2CD)", ImpactLevel: model.ImpactMedium},
		{JobKey: "J1", DiffType: model.DiffTypeChanged, BeforeSnapshot: testLine("J1", 2).Snapshot(),
			AfterSnapshot: testLine("J1", 2).Snapshot(), ChangeSummary: "Address changed", ImpactLevel: model.ImpactMedium},
	}
	require.NoError(t, st.CreateDiff(ctx, diff, items))
	return diff, items
}

func TestSQLite_CreateDiff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	diff, _ := seedDiff(t, st)

	got, err := st.GetDiff(ctx, diff.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FromVersionID)
	assert.Equal(t, *diff.FromVersionID, *got.FromVersionID)
	assert.Equal(t, diff.Summary, got.Summary)
	assert.Equal(t, model.DiffStatusNeedsCustomerReview, got.Status)

	items, err := st.ListDiffItems(ctx, diff.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "J2", items[0].JobKey)
	assert.Nil(t, items[0].BeforeSnapshot)
	assert.JSONEq(t, string(testLine("J2", 3).Snapshot()), string(items[0].AfterSnapshot))
	assert.Equal(t, model.DiffTypeChanged, items[1].DiffType)
}

func TestSQLite_CreateDiff_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	diff, items := seedDiff(t, st)

	dup := *diff
	err := st.CreateDiff(ctx, &dup, []model.PlanDiffItem{{JobKey: "J9", DiffType: model.DiffTypeAdded}})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	got, err := st.ListDiffItems(ctx, diff.ID)
	require.NoError(t, err)
	assert.Len(t, got, len(items))
}

func TestSQLite_FirstVersionDiffHasNullFrom(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	plan, v1 := seedVersion(t, st)

	diff := &model.PlanDiff{ID: "first", PlanID: plan.ID, ToVersionID: v1.ID, Status: model.DiffStatusNeedsCustomerReview}
	require.NoError(t, st.CreateDiff(ctx, diff, nil))

	got, err := st.GetDiff(ctx, "first")
	require.NoError(t, err)
	assert.Nil(t, got.FromVersionID)
}

func TestSQLite_TransitionDiffStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	diff, _ := seedDiff(t, st)

	require.NoError(t, st.TransitionDiffStatus(ctx, diff.ID,
		model.DiffStatusNeedsCustomerReview, model.DiffStatusCustomerApproved))

	err := st.TransitionDiffStatus(ctx, diff.ID,
		model.DiffStatusNeedsCustomerReview, model.DiffStatusCustomerRejected)
	assert.True(t, errors.Is(err, ErrStatusConflict))

	err = st.TransitionDiffStatus(ctx, "missing",
		model.DiffStatusCustomerApproved, model.DiffStatusApplied)
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := st.GetDiff(ctx, diff.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DiffStatusCustomerApproved, got.Status)
}

func TestSQLite_LatestAppliedDiff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	diff, _ := seedDiff(t, st)

	_, err := st.LatestAppliedDiff(ctx, diff.PlanID)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, st.TransitionDiffStatus(ctx, diff.ID,
		model.DiffStatusNeedsCustomerReview, model.DiffStatusApplied))
	require.NoError(t, st.SetDiffAppliedCount(ctx, diff.ID, 2))

	got, err := st.LatestAppliedDiff(ctx, diff.PlanID)
	require.NoError(t, err)
	assert.Equal(t, diff.ID, got.ID)
	assert.Equal(t, 2, got.AppliedCount)
}

func testJob(planID, versionID, jobKey string) *model.Job {
	return &model.Job{
		JobNumber:        "PLN-abc-" + jobKey,
		CustomerID:       "cust-1",
		PlanID:           planID,
		PlanVersionID:    versionID,
		JobKey:           jobKey,
		Source:           model.JobSourcePlan,
		JobType:          "install",
		DeliveryPostcode: "AB1 2CD",
		Items:            []model.JobItem{{Description: "Sofa", Quantity: 1}},
		OpsStatus:        model.OpsStatusUnallocated,
		CustomerStatus:   model.CustomerStatusScheduled,
	}
}

func TestSQLite_Jobs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("plan-1", "v1", "J1")
	require.NoError(t, st.CreateJob(ctx, job))
	assert.NotEmpty(t, job.ID)

	got, err := st.FindJobByOrigin(ctx, "plan-1", "v1", "J1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Items, got.Items)

	_, err = st.FindJobByOrigin(ctx, "plan-1", "v2", "J1")
	assert.True(t, errors.Is(err, ErrNotFound))

	got.DeliveryPostcode = "AB1 9ZZ"
	require.NoError(t, st.UpdateJob(ctx, got))
	updated, err := st.FindJobByKey(ctx, "plan-1", "J1")
	require.NoError(t, err)
	assert.Equal(t, "AB1 9ZZ", updated.DeliveryPostcode)
	assert.Equal(t, "v1", updated.PlanVersionID)
}

func TestSQLite_FindJobByKey_PrefersLiveJob(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testJob("plan-1", "v1", "J1")
	require.NoError(t, st.CreateJob(ctx, first))
	second := testJob("plan-1", "v3", "J1")
	require.NoError(t, st.CreateJob(ctx, second))

	// Newest live job wins.
	got, err := st.FindJobByKey(ctx, "plan-1", "J1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// A cancelled job yields to an older live one.
	second.CustomerStatus = model.CustomerStatusCancelled
	require.NoError(t, st.UpdateJob(ctx, second))
	got, err = st.FindJobByKey(ctx, "plan-1", "J1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// With every match cancelled the newest cancelled job is returned.
	first.CustomerStatus = model.CustomerStatusCancelled
	require.NoError(t, st.UpdateJob(ctx, first))
	got, err = st.FindJobByKey(ctx, "plan-1", "J1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = st.FindJobByKey(ctx, "plan-1", "J2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Jobs_OriginUnique(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateJob(ctx, testJob("plan-1", "v1", "J1")))
	assert.Error(t, st.CreateJob(ctx, testJob("plan-1", "v1", "J1")))
}

func TestSQLite_CreateJobsAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	jobs := []model.Job{*testJob("", "", "A"), *testJob("", "", "B")}
	for i := range jobs {
		jobs[i].Source = model.JobSourceImport
	}
	n, err := st.CreateJobs(ctx, jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := st.ListJobs(ctx, JobFilter{CustomerID: "cust-1", Source: model.JobSourceImport})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].JobKey)

	list, err = st.ListJobs(ctx, JobFilter{CustomerID: "other"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_OpsTasks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("plan-1", "v1", "J1")
	require.NoError(t, st.CreateJob(ctx, job))

	task := &model.OpsTask{
		TaskNumber: "T-000001",
		JobID:      job.ID,
		PlanDiffID: "diff-1",
		Type:       model.OpsTaskCustomerChange,
		Status:     model.OpsTaskResolved,
		Title:      "Customer change",
		Resolution: "Applied from plan diff diff-1",
	}
	require.NoError(t, st.CreateOpsTask(ctx, task))

	tasks, err := st.ListOpsTasks(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.OpsTaskCustomerChange, tasks[0].Type)
	assert.Equal(t, "diff-1", tasks[0].PlanDiffID)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
