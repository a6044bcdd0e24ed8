package db

import (
	"context"
)

type EntityAlias struct {
	Entity   string
	NativeID string
	Scope    int64
	TargetID int64
}

const getAlias = `SELECT entity, native_id, scope, target_id FROM entity_alias
WHERE entity = ? AND native_id = ? AND scope = ?`

func (q *Queries) GetAlias(ctx context.Context, entity, nativeID string, scope int64) (EntityAlias, error) {
	row := q.db.QueryRowContext(ctx, getAlias, entity, nativeID, scope)
	var i EntityAlias
	err := row.Scan(&i.Entity, &i.NativeID, &i.Scope, &i.TargetID)
	return i, err
}

const listAliases = `SELECT entity, native_id, scope, target_id FROM entity_alias ORDER BY entity, native_id`

func (q *Queries) ListAliases(ctx context.Context) ([]EntityAlias, error) {
	rows, err := q.db.QueryContext(ctx, listAliases)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (EntityAlias, error) {
		var i EntityAlias
		err := row.Scan(&i.Entity, &i.NativeID, &i.Scope, &i.TargetID)
		return i, err
	})
}

const createAlias = `INSERT INTO entity_alias (entity, native_id, scope, target_id) VALUES (?, ?, ?, ?)
ON CONFLICT (entity, native_id, scope) DO UPDATE SET target_id = excluded.target_id`

func (q *Queries) CreateAlias(ctx context.Context, arg EntityAlias) error {
	_, err := q.db.ExecContext(ctx, createAlias, arg.Entity, arg.NativeID, arg.Scope, arg.TargetID)
	return err
}

const repointAliases = `UPDATE entity_alias SET target_id = ? WHERE entity = ? AND target_id = ?`

// RepointAliases moves aliases of a merged entity onto the entity it was merged into.
func (q *Queries) RepointAliases(ctx context.Context, entity string, from, to int64) error {
	_, err := q.db.ExecContext(ctx, repointAliases, to, entity, from)
	return err
}
