package db

import (
	"context"
)

const listMigrations = `SELECT name, applied_at FROM schema_migration ORDER BY name`

func (q *Queries) ListMigrations(ctx context.Context) ([]SchemaMigration, error) {
	rows, err := q.db.QueryContext(ctx, listMigrations)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (SchemaMigration, error) {
		var i SchemaMigration
		err := row.Scan(&i.Name, &i.AppliedAt)
		return i, err
	})
}

const recordMigration = `INSERT INTO schema_migration (name, applied_at) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET applied_at = excluded.applied_at`

func (q *Queries) RecordMigration(ctx context.Context, name string, appliedAt int64) error {
	_, err := q.db.ExecContext(ctx, recordMigration, name, appliedAt)
	return err
}

const forgetMigration = `DELETE FROM schema_migration WHERE name = ?`

func (q *Queries) ForgetMigration(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, forgetMigration, name)
	return err
}

const columnExists = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`

func (q *Queries) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	n, err := q.QueryInt(ctx, columnExists, table, column)
	return n > 0, err
}

const triggerExists = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`

func (q *Queries) TriggerExists(ctx context.Context, name string) (bool, error) {
	n, err := q.QueryInt(ctx, triggerExists, name)
	return n > 0, err
}
