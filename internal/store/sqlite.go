package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobplan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs of the CLI and the end-to-end tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers and keeps transactions on one
	// handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS plans (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_versions (
	id               TEXT PRIMARY KEY,
	plan_id          TEXT NOT NULL REFERENCES plans(id),
	version_number   INTEGER NOT NULL,
	source_file_name TEXT NOT NULL DEFAULT '',
	file_url         TEXT NOT NULL DEFAULT '',
	parse_status     TEXT NOT NULL DEFAULT 'pending',
	rows_count       INTEGER NOT NULL DEFAULT 0,
	parse_errors     TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (plan_id, version_number)
);

CREATE TABLE IF NOT EXISTS plan_lines (
	id                   TEXT PRIMARY KEY,
	plan_version_id      TEXT NOT NULL REFERENCES plan_versions(id),
	row_number           INTEGER NOT NULL,
	job_key              TEXT NOT NULL,
	job_type             TEXT NOT NULL DEFAULT '',
	collection_address   TEXT NOT NULL DEFAULT '',
	collection_postcode  TEXT NOT NULL DEFAULT '',
	collection_contact   TEXT NOT NULL DEFAULT '',
	collection_phone     TEXT NOT NULL DEFAULT '',
	collection_date      TEXT NOT NULL DEFAULT '',
	collection_time_slot TEXT NOT NULL DEFAULT '',
	delivery_address     TEXT NOT NULL DEFAULT '',
	delivery_postcode    TEXT NOT NULL DEFAULT '',
	delivery_contact     TEXT NOT NULL DEFAULT '',
	delivery_phone       TEXT NOT NULL DEFAULT '',
	delivery_date        TEXT NOT NULL DEFAULT '',
	delivery_time_slot   TEXT NOT NULL DEFAULT '',
	requires_fitter      BOOLEAN NOT NULL DEFAULT 0,
	special_instructions TEXT NOT NULL DEFAULT '',
	item_description     TEXT NOT NULL DEFAULT '',
	item_quantity        REAL NOT NULL DEFAULT 1,
	item_weight_kg       REAL NOT NULL DEFAULT 0,
	item_dimensions      TEXT NOT NULL DEFAULT '',
	line_hash            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plan_lines_version_key ON plan_lines(plan_version_id, job_key);

CREATE TABLE IF NOT EXISTS plan_diffs (
	id              TEXT PRIMARY KEY,
	plan_id         TEXT NOT NULL REFERENCES plans(id),
	from_version_id TEXT REFERENCES plan_versions(id),
	to_version_id   TEXT NOT NULL REFERENCES plan_versions(id),
	added_count     INTEGER NOT NULL DEFAULT 0,
	changed_count   INTEGER NOT NULL DEFAULT 0,
	cancelled_count INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'needs_customer_review',
	applied_count   INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_diff_items (
	id              TEXT PRIMARY KEY,
	plan_diff_id    TEXT NOT NULL REFERENCES plan_diffs(id),
	position        INTEGER NOT NULL,
	job_key         TEXT NOT NULL,
	diff_type       TEXT NOT NULL,
	before_snapshot TEXT,
	after_snapshot  TEXT,
	change_summary  TEXT NOT NULL DEFAULT '',
	impact_level    TEXT NOT NULL DEFAULT 'LOW'
);

CREATE INDEX IF NOT EXISTS idx_plan_diff_items_diff ON plan_diff_items(plan_diff_id, position);

CREATE TABLE IF NOT EXISTS jobs (
	id                   TEXT PRIMARY KEY,
	job_number           TEXT NOT NULL,
	customer_id          TEXT NOT NULL,
	plan_id              TEXT NOT NULL DEFAULT '',
	plan_version_id      TEXT NOT NULL DEFAULT '',
	job_key              TEXT NOT NULL,
	source               TEXT NOT NULL,
	job_type             TEXT NOT NULL DEFAULT '',
	collection_address   TEXT NOT NULL DEFAULT '',
	collection_postcode  TEXT NOT NULL DEFAULT '',
	collection_contact   TEXT NOT NULL DEFAULT '',
	collection_phone     TEXT NOT NULL DEFAULT '',
	collection_date      TEXT NOT NULL DEFAULT '',
	collection_time_slot TEXT NOT NULL DEFAULT '',
	delivery_address     TEXT NOT NULL DEFAULT '',
	delivery_postcode    TEXT NOT NULL DEFAULT '',
	delivery_contact     TEXT NOT NULL DEFAULT '',
	delivery_phone       TEXT NOT NULL DEFAULT '',
	delivery_date        TEXT NOT NULL DEFAULT '',
	delivery_time_slot   TEXT NOT NULL DEFAULT '',
	requires_fitter      BOOLEAN NOT NULL DEFAULT 0,
	special_instructions TEXT NOT NULL DEFAULT '',
	items                TEXT NOT NULL DEFAULT '[]',
	ops_status           TEXT NOT NULL,
	customer_status      TEXT NOT NULL,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_plan_key ON jobs(plan_id, job_key, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_customer ON jobs(customer_id);
CREATE UNIQUE INDEX IF NOT EXISTS uq_jobs_plan_origin
	ON jobs(plan_id, plan_version_id, job_key) WHERE source = 'plan';

CREATE TABLE IF NOT EXISTS ops_tasks (
	id           TEXT PRIMARY KEY,
	task_number  TEXT NOT NULL,
	job_id       TEXT NOT NULL REFERENCES jobs(id),
	plan_diff_id TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL,
	status       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	resolution   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ops_tasks_job ON ops_tasks(job_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// insertMany runs one prepared INSERT per row inside tx.
func insertMany(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+table+` (`+cols(columns)+`) VALUES (`+qmarkParams(len(columns))+`)`)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}
	return nil
}

func sqliteNotFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, format, args...)
	}
	return eris.Wrapf(err, format, args...)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

// --- Plans ---

func (s *SQLiteStore) CreatePlan(ctx context.Context, customerID, name string) (*model.Plan, error) {
	now := time.Now().UTC()
	p := &model.Plan{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Name:       name,
		Status:     model.PlanStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (`+cols(planColumns)+`) VALUES (`+qmarkParams(len(planColumns))+`)`,
		p.ID, p.CustomerID, p.Name, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert plan")
	}
	return p, nil
}

func (s *SQLiteStore) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx,
		`SELECT `+cols(planColumns)+` FROM plans WHERE id = ?`, planID))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: get plan %s", planID)
	}
	return p, nil
}

func (s *SQLiteStore) UpdatePlanStatus(ctx context.Context, planID string, status model.PlanStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), planID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update plan status %s", planID)
	}
	return checkRowsAffected(res, "plan", planID)
}

// --- Versions and lines ---

func (s *SQLiteStore) CreatePlanVersion(ctx context.Context, planID, sourceFileName, fileURL string) (*model.PlanVersion, error) {
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
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO plan_versions (id, plan_id, version_number, source_file_name, file_url, parse_status, rows_count, created_at, updated_at)
		 SELECT ?, ?, COALESCE(MAX(version_number), 0) + 1, ?, ?, ?, 0, ?, ?
		 FROM plan_versions WHERE plan_id = ?
		 RETURNING version_number`,
		v.ID, planID, sourceFileName, fileURL, string(v.ParseStatus), now, now, planID,
	).Scan(&v.VersionNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert version for plan %s", planID)
	}
	return v, nil
}

func (s *SQLiteStore) GetPlanVersion(ctx context.Context, versionID string) (*model.PlanVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+cols(versionColumns)+` FROM plan_versions WHERE id = ?`, versionID))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: get version %s", versionID)
	}
	return v, nil
}

func (s *SQLiteStore) ListPlanVersions(ctx context.Context, planID string) ([]model.PlanVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cols(versionColumns)+` FROM plan_versions WHERE plan_id = ? ORDER BY version_number`, planID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list versions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PlanVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list versions iterate")
}

func (s *SQLiteStore) SaveParsedLines(ctx context.Context, versionID string, lines []model.PlanLine) error {
	rows := make([][]any, len(lines))
	for i := range lines {
		l := lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.PlanVersionID = versionID
		rows[i] = lineArgs(l)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE plan_versions SET parse_status = ?, rows_count = ?, parse_errors = NULL, updated_at = ?
			 WHERE id = ? AND parse_status <> ?`,
			string(model.ParseStatusParsed), len(lines), time.Now().UTC(), versionID, string(model.ParseStatusParsed),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: mark version %s parsed", versionID)
		}
		if err := sqliteCheckVersionUpdated(ctx, tx, res, versionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM plan_lines WHERE plan_version_id = ?`, versionID); err != nil {
			return eris.Wrapf(err, "sqlite: clear lines for version %s", versionID)
		}
		return insertMany(ctx, tx, "plan_lines", lineColumns, rows)
	})
}

func (s *SQLiteStore) MarkParseFailed(ctx context.Context, versionID string, errs []model.RowError) error {
	errsJSON, err := encodeJSON(errs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_versions SET parse_status = ?, rows_count = 0, parse_errors = ?, updated_at = ?
		 WHERE id = ? AND parse_status <> ?`,
		string(model.ParseStatusFailed), string(errsJSON), time.Now().UTC(), versionID, string(model.ParseStatusParsed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark version %s failed", versionID)
	}
	return sqliteCheckVersionUpdated(ctx, s.db, res, versionID)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteCheckVersionUpdated tells a missing version apart from one already
// parsed when a parse-status write matched no row.
func sqliteCheckVersionUpdated(ctx context.Context, q rowQuerier, res sql.Result, versionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var status string
	if err := q.QueryRowContext(ctx, `SELECT parse_status FROM plan_versions WHERE id = ?`, versionID).Scan(&status); err != nil {
		return sqliteNotFound(err, "sqlite: get version %s", versionID)
	}
	return eris.Wrapf(ErrStatusConflict, "version %s is already %s", versionID, status)
}

func (s *SQLiteStore) ListPlanLines(ctx context.Context, versionID string) ([]model.PlanLine, error) {
	return s.queryLines(ctx,
		`SELECT `+cols(lineColumns)+` FROM plan_lines WHERE plan_version_id = ? ORDER BY row_number`,
		versionID)
}

func (s *SQLiteStore) ListPlanLinesByKey(ctx context.Context, versionID, jobKey string) ([]model.PlanLine, error) {
	return s.queryLines(ctx,
		`SELECT `+cols(lineColumns)+` FROM plan_lines WHERE plan_version_id = ? AND job_key = ? ORDER BY row_number`,
		versionID, jobKey)
}

func (s *SQLiteStore) queryLines(ctx context.Context, query string, args ...any) ([]model.PlanLine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lines")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PlanLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan line")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lines iterate")
}

// --- Diffs ---

func nullString(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *SQLiteStore) CreateDiff(ctx context.Context, diff *model.PlanDiff, items []model.PlanDiffItem) error {
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
			nullString(it.BeforeSnapshot), nullString(it.AfterSnapshot),
			it.ChangeSummary, string(it.ImpactLevel),
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO plan_diffs (`+cols(diffColumns)+`) VALUES (`+qmarkParams(len(diffColumns))+`)`,
			diff.ID, diff.PlanID, diff.FromVersionID, diff.ToVersionID,
			diff.Summary.AddedCount, diff.Summary.ChangedCount, diff.Summary.CancelledCount,
			string(diff.Status), diff.AppliedCount, diff.CreatedAt, diff.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert diff %s", diff.ID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return eris.Wrapf(ErrAlreadyExists, "sqlite: diff %s", diff.ID)
		}
		return insertMany(ctx, tx, "plan_diff_items", diffItemColumns, rows)
	})
}

func (s *SQLiteStore) GetDiff(ctx context.Context, diffID string) (*model.PlanDiff, error) {
	d, err := scanDiff(s.db.QueryRowContext(ctx,
		`SELECT `+cols(diffColumns)+` FROM plan_diffs WHERE id = ?`, diffID))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: get diff %s", diffID)
	}
	return d, nil
}

func (s *SQLiteStore) ListDiffItems(ctx context.Context, diffID string) ([]model.PlanDiffItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cols(diffItemSelect)+` FROM plan_diff_items WHERE plan_diff_id = ? ORDER BY position`, diffID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list diff items")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PlanDiffItem
	for rows.Next() {
		it, err := scanDiffItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan diff item")
		}
		out = append(out, it)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list diff items iterate")
}

func (s *SQLiteStore) TransitionDiffStatus(ctx context.Context, diffID string, from, to model.DiffStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_diffs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), diffID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition diff %s", diffID)
	}
	if n, err := res.RowsAffected(); err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	} else if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM plan_diffs WHERE id = ?`, diffID).Scan(&current)
	if err != nil {
		return sqliteNotFound(err, "sqlite: get diff %s", diffID)
	}
	return eris.Wrapf(ErrStatusConflict, "diff %s is %s, not %s", diffID, current, from)
}

func (s *SQLiteStore) SetDiffAppliedCount(ctx context.Context, diffID string, n int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plan_diffs SET applied_count = ?, updated_at = ? WHERE id = ?`,
		n, time.Now().UTC(), diffID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set applied count %s", diffID)
	}
	return checkRowsAffected(res, "diff", diffID)
}

func (s *SQLiteStore) LatestAppliedDiff(ctx context.Context, planID string) (*model.PlanDiff, error) {
	d, err := scanDiff(s.db.QueryRowContext(ctx,
		`SELECT `+cols(diffColumns)+` FROM plan_diffs
		 WHERE plan_id = ? AND status = ?
		 ORDER BY updated_at DESC, rowid DESC LIMIT 1`,
		planID, string(model.DiffStatusApplied)))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: latest applied diff for plan %s", planID)
	}
	return d, nil
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	prepareJob(job, time.Now().UTC())
	items, err := encodeJSON(job.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+cols(jobColumns)+`) VALUES (`+qmarkParams(len(jobColumns))+`)`,
		jobArgs(job, string(items))...,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.JobKey)
}

func (s *SQLiteStore) CreateJobs(ctx context.Context, jobs []model.Job) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(jobs))
	for i := range jobs {
		prepareJob(&jobs[i], now)
		items, err := encodeJSON(jobs[i].Items)
		if err != nil {
			return 0, err
		}
		rows[i] = jobArgs(&jobs[i], string(items))
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertMany(ctx, tx, "jobs", jobColumns, rows)
	})
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()
	items, err := encodeJSON(job.Items)
	if err != nil {
		return err
	}
	args := jobArgs(job, string(items))
	vals := append([]any{}, args[1:len(args)-2]...)
	vals = append(vals, job.UpdatedAt, job.ID)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE jobs SET %s, updated_at = ? WHERE id = ?`, setClause(jobUpdateColumns, 1, false)),
		vals...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) FindJobByOrigin(ctx context.Context, planID, versionID, jobKey string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+cols(jobColumns)+` FROM jobs
		 WHERE plan_id = ? AND plan_version_id = ? AND job_key = ?
		 ORDER BY created_at, rowid LIMIT 1`,
		planID, versionID, jobKey))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: find job %s/%s/%s", planID, versionID, jobKey)
	}
	return j, nil
}

func (s *SQLiteStore) FindJobByKey(ctx context.Context, planID, jobKey string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+cols(jobColumns)+` FROM jobs
		 WHERE plan_id = ? AND job_key = ?
		 ORDER BY customer_status = 'cancelled', created_at DESC, rowid DESC LIMIT 1`,
		planID, jobKey))
	if err != nil {
		return nil, sqliteNotFound(err, "sqlite: find job %s/%s", planID, jobKey)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + cols(jobColumns) + ` FROM jobs WHERE 1=1`
	var args []any

	add := func(col, val string) {
		if val == "" {
			return
		}
		query += ` AND ` + col + ` = ?`
		args = append(args, val)
	}
	add("customer_id", filter.CustomerID)
	add("plan_id", filter.PlanID)
	add("job_key", filter.JobKey)
	add("source", string(filter.Source))
	add("customer_status", string(filter.CustomerStatus))
	query += ` ORDER BY created_at, rowid`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// --- Ops tasks ---

func (s *SQLiteStore) CreateOpsTask(ctx context.Context, task *model.OpsTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ops_tasks (`+cols(opsTaskColumns)+`) VALUES (`+qmarkParams(len(opsTaskColumns))+`)`,
		opsTaskArgs(task)...,
	)
	return eris.Wrapf(err, "sqlite: insert ops task for job %s", task.JobID)
}

func (s *SQLiteStore) ListOpsTasks(ctx context.Context, jobID string) ([]model.OpsTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cols(opsTaskColumns)+` FROM ops_tasks WHERE job_id = ? ORDER BY created_at, rowid`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ops tasks")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.OpsTask
	for rows.Next() {
		t, err := scanOpsTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ops task")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ops tasks iterate")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
