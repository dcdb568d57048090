package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the newest migration this binary understands.
const SchemaVersion = 1

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS builds (
  id TEXT PRIMARY KEY,
  product TEXT NOT NULL,
  version_count INTEGER NOT NULL,
  created_at_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_builds_product ON builds(product, created_at_utc);

CREATE TABLE IF NOT EXISTS versions (
  build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
  rsn INTEGER NOT NULL,
  label TEXT NOT NULL,
  ts_utc TEXT NOT NULL,
  PRIMARY KEY (build_id, rsn)
);

CREATE TABLE IF NOT EXISTS classes (
  build_id TEXT NOT NULL,
  rsn INTEGER NOT NULL,
  name TEXT NOT NULL,
  short_name TEXT NOT NULL,
  package TEXT NOT NULL,
  super_class TEXT NOT NULL DEFAULT '',
  interfaces TEXT NOT NULL DEFAULT 'null',
  dependencies TEXT NOT NULL DEFAULT 'null',
  status TEXT NOT NULL,
  born_rsn INTEGER NOT NULL,
  age INTEGER NOT NULL,
  modification_frequency INTEGER NOT NULL,
  distance INTEGER NOT NULL,
  deleted_rsn INTEGER NOT NULL DEFAULT 0,
  metrics TEXT NOT NULL,
  PRIMARY KEY (build_id, rsn, name),
  FOREIGN KEY (build_id, rsn) REFERENCES versions(build_id, rsn) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_classes_name ON classes(build_id, name);

CREATE TABLE IF NOT EXISTS methods (
  build_id TEXT NOT NULL,
  rsn INTEGER NOT NULL,
  class TEXT NOT NULL,
  signature TEXT NOT NULL,
  name TEXT NOT NULL,
  metrics TEXT NOT NULL,
  PRIMARY KEY (build_id, rsn, class, signature),
  FOREIGN KEY (build_id, rsn, class) REFERENCES classes(build_id, rsn, name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS advisories (
  build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  kind TEXT NOT NULL,
  rsn INTEGER NOT NULL,
  label TEXT NOT NULL,
  entry TEXT NOT NULL DEFAULT '',
  class TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  PRIMARY KEY (build_id, seq)
);
`,
	},
}

// EnsureSchema applies pending migrations, one transaction each.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_utc TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
);
`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if current > SchemaVersion {
		return fmt.Errorf("%w: store is at %d, binary supports %d", ErrSchemaTooNew, current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}

	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("apply migration %d: %w", m.version, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}

	return nil
}
