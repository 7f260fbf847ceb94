package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobplan/internal/db"
	"github.com/sells-group/jobplan/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool, migrationFS, "migrations")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

// --- Plans ---

func (s *PostgresStore) CreatePlan(ctx context.Context, customerID, name string) (*model.Plan, error) {
	now := time.Now().UTC()
	p := &model.Plan{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Name:       name,
		Status:     model.PlanStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO plans (`+cols(planColumns)+`) VALUES (`+dollarParams(len(planColumns))+`)`,
		p.ID, p.CustomerID, p.Name, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert plan")
	}
	return p, nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx,
		`SELECT `+cols(planColumns)+` FROM plans WHERE id = $1`, planID))
	if err != nil {
		return nil, notFound(err, "postgres: get plan %s", planID)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePlanStatus(ctx context.Context, planID string, status model.PlanStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), planID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update plan status %s", planID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: plan %s", planID)
	}
	return nil
}

// --- Versions and lines ---

func (s *PostgresStore) CreatePlanVersion(ctx context.Context, planID, sourceFileName, fileURL string) (*model.PlanVersion, error) {
	now := time.Now().UTC()
	v := &model.PlanVersion{
		ID:             uuid.New().String(),
		PlanID:         planID,
		SourceFileName: sourceFileName,
		FileURL:        fileURL,
		ParseStatus:    model.ParseStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO plan_versions (id, plan_id, version_number, source_file_name, file_url, parse_status, rows_count, created_at, updated_at)
		 SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, 0, $6, $6
		 FROM plan_versions WHERE plan_id = $2
		 RETURNING version_number`,
		v.ID, planID, sourceFileName, fileURL, string(v.ParseStatus), now,
	).Scan(&v.VersionNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert version for plan %s", planID)
	}
	return v, nil
}

func (s *PostgresStore) GetPlanVersion(ctx context.Context, versionID string) (*model.PlanVersion, error) {
	v, err := scanVersion(s.pool.QueryRow(ctx,
		`SELECT `+cols(versionColumns)+` FROM plan_versions WHERE id = $1`, versionID))
	if err != nil {
		return nil, notFound(err, "postgres: get version %s", versionID)
	}
	return v, nil
}

func (s *PostgresStore) ListPlanVersions(ctx context.Context, planID string) ([]model.PlanVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cols(versionColumns)+` FROM plan_versions WHERE plan_id = $1 ORDER BY version_number`, planID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list versions")
	}
	defer rows.Close()

	var out []model.PlanVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list versions iterate")
}

func (s *PostgresStore) SaveParsedLines(ctx context.Context, versionID string, lines []model.PlanLine) error {
	rows := make([][]any, len(lines))
	for i := range lines {
		l := lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.PlanVersionID = versionID
		rows[i] = lineArgs(l)
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE plan_versions SET parse_status = $1, rows_count = $2, parse_errors = NULL, updated_at = $3
			 WHERE id = $4 AND parse_status <> $5`,
			string(model.ParseStatusParsed), len(lines), time.Now().UTC(), versionID, string(model.ParseStatusParsed),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: mark version %s parsed", versionID)
		}
		if err := checkVersionUpdated(ctx, tx, tag, versionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM plan_lines WHERE plan_version_id = $1`, versionID); err != nil {
			return eris.Wrapf(err, "postgres: clear lines for version %s", versionID)
		}
		_, err = db.CopyFrom(ctx, tx, "plan_lines", lineColumns, rows)
		return err
	})
}

func (s *PostgresStore) MarkParseFailed(ctx context.Context, versionID string, errs []model.RowError) error {
	errsJSON, err := encodeJSON(errs)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE plan_versions SET parse_status = $1, rows_count = 0, parse_errors = $2, updated_at = $3
		 WHERE id = $4 AND parse_status <> $5`,
		string(model.ParseStatusFailed), errsJSON, time.Now().UTC(), versionID, string(model.ParseStatusParsed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark version %s failed", versionID)
	}
	return checkVersionUpdated(ctx, s.pool, tag, versionID)
}

// checkVersionUpdated tells a missing version apart from one already
// parsed when a parse-status write matched no row.
func checkVersionUpdated(ctx context.Context, q db.Querier, tag pgconn.CommandTag, versionID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	if err := q.QueryRow(ctx, `SELECT parse_status FROM plan_versions WHERE id = $1`, versionID).Scan(&status); err != nil {
		return notFound(err, "postgres: get version %s", versionID)
	}
	return eris.Wrapf(ErrStatusConflict, "version %s is already %s", versionID, status)
}

func (s *PostgresStore) ListPlanLines(ctx context.Context, versionID string) ([]model.PlanLine, error) {
	return s.queryLines(ctx,
		`SELECT `+cols(lineColumns)+` FROM plan_lines WHERE plan_version_id = $1 ORDER BY row_number`,
		versionID)
}

func (s *PostgresStore) ListPlanLinesByKey(ctx context.Context, versionID, jobKey string) ([]model.PlanLine, error) {
	return s.queryLines(ctx,
		`SELECT `+cols(lineColumns)+` FROM plan_lines WHERE plan_version_id = $1 AND job_key = $2 ORDER BY row_number`,
		versionID, jobKey)
}

func (s *PostgresStore) queryLines(ctx context.Context, query string, args ...any) ([]model.PlanLine, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lines")
	}
	defer rows.Close()

	var out []model.PlanLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan line")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lines iterate")
}

// --- Diffs ---

func (s *PostgresStore) CreateDiff(ctx context.Context, diff *model.PlanDiff, items []model.PlanDiffItem) error {
	now := time.Now().UTC()
	diff.CreatedAt, diff.UpdatedAt = now, now

	rows := make([][]any, len(items))
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.PlanDiffID = diff.ID
		rows[i] = []any{
			it.ID, it.PlanDiffID, i, it.JobKey, string(it.DiffType),
			nullJSON(it.BeforeSnapshot), nullJSON(it.AfterSnapshot),
			it.ChangeSummary, string(it.ImpactLevel),
		}
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO plan_diffs (`+cols(diffColumns)+`) VALUES (`+dollarParams(len(diffColumns))+`)
			 ON CONFLICT (id) DO NOTHING`,
			diff.ID, diff.PlanID, diff.FromVersionID, diff.ToVersionID,
			diff.Summary.AddedCount, diff.Summary.ChangedCount, diff.Summary.CancelledCount,
			string(diff.Status), diff.AppliedCount, diff.CreatedAt, diff.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert diff %s", diff.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrAlreadyExists, "postgres: diff %s", diff.ID)
		}
		_, err = db.CopyFrom(ctx, tx, "plan_diff_items", diffItemColumns, rows)
		return err
	})
}

// nullJSON stores an absent snapshot as SQL NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func (s *PostgresStore) GetDiff(ctx context.Context, diffID string) (*model.PlanDiff, error) {
	d, err := scanDiff(s.pool.QueryRow(ctx,
		`SELECT `+cols(diffColumns)+` FROM plan_diffs WHERE id = $1`, diffID))
	if err != nil {
		return nil, notFound(err, "postgres: get diff %s", diffID)
	}
	return d, nil
}

func (s *PostgresStore) ListDiffItems(ctx context.Context, diffID string) ([]model.PlanDiffItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cols(diffItemSelect)+` FROM plan_diff_items WHERE plan_diff_id = $1 ORDER BY position`, diffID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list diff items")
	}
	defer rows.Close()

	var out []model.PlanDiffItem
	for rows.Next() {
		it, err := scanDiffItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan diff item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list diff items iterate")
}

func (s *PostgresStore) TransitionDiffStatus(ctx context.Context, diffID string, from, to model.DiffStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plan_diffs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), diffID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition diff %s", diffID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM plan_diffs WHERE id = $1`, diffID).Scan(&current)
	if err != nil {
		return notFound(err, "postgres: get diff %s", diffID)
	}
	return eris.Wrapf(ErrStatusConflict, "diff %s is %s, not %s", diffID, current, from)
}

func (s *PostgresStore) SetDiffAppliedCount(ctx context.Context, diffID string, n int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plan_diffs SET applied_count = $1, updated_at = $2 WHERE id = $3`,
		n, time.Now().UTC(), diffID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set applied count %s", diffID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: diff %s", diffID)
	}
	return nil
}

func (s *PostgresStore) LatestAppliedDiff(ctx context.Context, planID string) (*model.PlanDiff, error) {
	d, err := scanDiff(s.pool.QueryRow(ctx,
		`SELECT `+cols(diffColumns)+` FROM plan_diffs
		 WHERE plan_id = $1 AND status = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		planID, string(model.DiffStatusApplied)))
	if err != nil {
		return nil, notFound(err, "postgres: latest applied diff for plan %s", planID)
	}
	return d, nil
}

// --- Jobs ---

func prepareJob(j *model.Job, now time.Time) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Items == nil {
		j.Items = []model.JobItem{}
	}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	prepareJob(job, time.Now().UTC())
	items, err := encodeJSON(job.Items)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (`+cols(jobColumns)+`) VALUES (`+dollarParams(len(jobColumns))+`)`,
		jobArgs(job, items)...,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.JobKey)
}

func (s *PostgresStore) CreateJobs(ctx context.Context, jobs []model.Job) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(jobs))
	for i := range jobs {
		prepareJob(&jobs[i], now)
		items, err := encodeJSON(jobs[i].Items)
		if err != nil {
			return 0, err
		}
		rows[i] = jobArgs(&jobs[i], items)
	}

	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = db.CopyFrom(ctx, tx, "jobs", jobColumns, rows)
		return err
	})
	return int(n), err
}

// jobUpdateColumns are the columns rewritten when a job is re-materialized.
var jobUpdateColumns = jobColumns[1:len(jobColumns)-2]

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()
	items, err := encodeJSON(job.Items)
	if err != nil {
		return err
	}
	args := jobArgs(job, items)
	// Drop id and created_at; append updated_at then id for the WHERE.
	vals := append([]any{}, args[1:len(args)-2]...)
	vals = append(vals, job.UpdatedAt, job.ID)

	n := len(jobUpdateColumns)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE jobs SET %s, updated_at = $%d WHERE id = $%d`,
			setClause(jobUpdateColumns, 1, true), n+1, n+2),
		vals...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) FindJobByOrigin(ctx context.Context, planID, versionID, jobKey string) (*model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+cols(jobColumns)+` FROM jobs
		 WHERE plan_id = $1 AND plan_version_id = $2 AND job_key = $3
		 ORDER BY created_at, id LIMIT 1`,
		planID, versionID, jobKey))
	if err != nil {
		return nil, notFound(err, "postgres: find job %s/%s/%s", planID, versionID, jobKey)
	}
	return j, nil
}

func (s *PostgresStore) FindJobByKey(ctx context.Context, planID, jobKey string) (*model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+cols(jobColumns)+` FROM jobs
		 WHERE plan_id = $1 AND job_key = $2
		 ORDER BY customer_status = 'cancelled', created_at DESC, id DESC LIMIT 1`,
		planID, jobKey))
	if err != nil {
		return nil, notFound(err, "postgres: find job %s/%s", planID, jobKey)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + cols(jobColumns) + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	add := func(col string, val string) {
		if val == "" {
			return
		}
		query += fmt.Sprintf(` AND %s = $%d`, col, argIdx)
		args = append(args, val)
		argIdx++
	}
	add("customer_id", filter.CustomerID)
	add("plan_id", filter.PlanID)
	add("job_key", filter.JobKey)
	add("source", string(filter.Source))
	add("customer_status", string(filter.CustomerStatus))
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// --- Ops tasks ---

func (s *PostgresStore) CreateOpsTask(ctx context.Context, task *model.OpsTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ops_tasks (`+cols(opsTaskColumns)+`) VALUES (`+dollarParams(len(opsTaskColumns))+`)`,
		opsTaskArgs(task)...,
	)
	return eris.Wrapf(err, "postgres: insert ops task for job %s", task.JobID)
}

func (s *PostgresStore) ListOpsTasks(ctx context.Context, jobID string) ([]model.OpsTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cols(opsTaskColumns)+` FROM ops_tasks WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ops tasks")
	}
	defer rows.Close()

	var out []model.OpsTask
	for rows.Next() {
		t, err := scanOpsTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan ops task")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ops tasks iterate")
}
