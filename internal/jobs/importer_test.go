package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/idgen"
	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const importCSV = `job_key,job_type,delivery_address,delivery_postcode,delivery_date,delivery_time_slot,requires_fitter,item_description
J1,install,1 Main St,AB1 2CD,2026-01-01,am,yes,Sofa
J1,install,1 Main St,AB1 2CD,2026-01-01,am,yes,Chair
J2,delivery,2 Side St,EF3 4GH,2026-01-02,pm,no,Table
`

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestImporter_Import(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	im := &Importer{Store: st, Batches: idgen.NewSequence("batch")}

	res, err := im.Import(ctx, "cust-1", importCSV)
	require.NoError(t, err)
	assert.Equal(t, planfile.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.CreatedCount)
	assert.Empty(t, res.Errors)

	jobs, err := st.ListJobs(ctx, store.JobFilter{CustomerID: "cust-1", Source: model.JobSourceImport})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	byKey := map[string]model.Job{}
	for _, j := range jobs {
		byKey[j.JobKey] = j
	}
	assert.Equal(t, "IMP-batch000-J1", byKey["J1"].JobNumber)
	assert.Len(t, byKey["J1"].Items, 2)
	assert.True(t, byKey["J1"].RequiresFitter)
	assert.False(t, byKey["J2"].RequiresFitter)
	assert.Empty(t, byKey["J2"].PlanID)
	assert.Equal(t, model.CustomerStatusScheduled, byKey["J2"].CustomerStatus)
}

func TestImporter_RequiresFitterColumn(t *testing.T) {
	st := newTestStore(t)
	im := NewImporter(st, nil)

	raw := "job_key,job_type,delivery_address,delivery_postcode,delivery_date,delivery_time_slot\n" +
		"J1,install,1 Main St,AB1 2CD,2026-01-01,am\n"
	res, err := im.Import(context.Background(), "cust-1", raw)
	require.NoError(t, err)
	assert.Equal(t, planfile.StatusFailed, res.Status)
	assert.Zero(t, res.CreatedCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, "requires_fitter")

	jobs, err := st.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestImporter_EmptyFile(t *testing.T) {
	im := NewImporter(newTestStore(t), nil)

	res, err := im.Import(context.Background(), "cust-1", "")
	require.NoError(t, err)
	assert.Equal(t, planfile.StatusFailed, res.Status)
	assert.Equal(t, []model.RowError{{Row: 0, Error: planfile.ErrEmptyFile}}, res.Errors)
}

type mockStore struct {
	store.Store
	mock.Mock
}

func (m *mockStore) CreateJobs(ctx context.Context, jobs []model.Job) (int, error) {
	args := m.Called(ctx, jobs)
	return args.Int(0), args.Error(1)
}

func TestImporter_StoreError(t *testing.T) {
	st := &mockStore{}
	st.On("CreateJobs", mock.Anything, mock.Anything).Return(0, errors.New("disk full"))
	im := &Importer{Store: st, Batches: idgen.NewSequence("b")}

	res, err := im.Import(context.Background(), "cust-1", importCSV)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "disk full")
	st.AssertExpectations(t)
}
