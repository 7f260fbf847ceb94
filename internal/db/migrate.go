package db

import (
	"context"
	"io/fs"
	"path"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const migrationLockKey = 7240315

// Migrate applies the .sql files in dir of fsys that are not yet recorded
// in schema_migrations, in lexicographic order. An advisory lock serializes
// concurrent runs.
func Migrate(ctx context.Context, pool Pool, fsys fs.FS, dir string) error {
	log := zap.L().With(zap.String("component", "db.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return eris.Wrap(err, "db: acquire migration lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			log.Warn("db: release migration lock failed", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "db: ensure schema_migrations")
	}

	names, err := migrationFiles(fsys, dir)
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return eris.Wrapf(err, "db: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "db: apply migration %s", name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())", name,
		); err != nil {
			return eris.Wrapf(err, "db: record migration %s", name)
		}
	}
	return nil
}

func migrationFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, eris.Wrap(err, "db: read migration dir")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, pool Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "db: iterate migrations")
}
