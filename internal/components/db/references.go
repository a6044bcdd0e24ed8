package db

import (
	"context"
	"fmt"
)

// Reference is a column that holds the surrogate key of another entity.
type Reference struct {
	Table  string
	Column string
}

func (r Reference) String() string {
	return fmt.Sprintf("%s.%s", r.Table, r.Column)
}

// EntityTables maps every resolvable entity to the table holding it.
var EntityTables = map[string]string{
	"season": "season",
	"team":   "team",
	"player": "player",
	"venue":  "venue",
	"match":  "match",
}

// References lists, per entity table, every column that points into it.
var References = map[string][]Reference{
	"season": {
		{Table: "team", Column: "season_id"},
		{Table: "match", Column: "season_id"},
		{Table: "team_match_record", Column: "season_id"},
	},
	"team": {
		{Table: "match", Column: "home_team_id"},
		{Table: "match", Column: "away_team_id"},
		{Table: "team_match_record", Column: "team_id"},
		{Table: "team_match_record", Column: "opponent_team_id"},
		{Table: "player_match_record", Column: "team_id"},
		{Table: "shot_event", Column: "team_id"},
	},
	"player": {
		{Table: "player_match_record", Column: "player_id"},
		{Table: "shot_event", Column: "player_id"},
	},
	"venue": {
		{Table: "match", Column: "venue_id"},
	},
	"match": {
		{Table: "team_match_record", Column: "match_id"},
		{Table: "player_match_record", Column: "match_id"},
		{Table: "shot_event", Column: "match_id"},
	},
}

func referencesOf(table string) ([]Reference, error) {
	refs, ok := References[table]
	if !ok {
		return nil, fmt.Errorf("unknown entity table '%s'", table)
	}
	return refs, nil
}

// CountReferences returns the amount of rows referencing the given row of an
// entity table.
func (q *Queries) CountReferences(ctx context.Context, table string, id int64) (int64, error) {
	refs, err := referencesOf(table)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ref := range refs {
		n, err := q.QueryInt(
			ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", ref.Table, ref.Column),
			id,
		)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", ref, err)
		}
		total += n
	}
	return total, nil
}

// RepointReferences moves every reference of `from` onto `to` and returns the
// amount of rows changed.
func (q *Queries) RepointReferences(ctx context.Context, table string, from, to int64) (int64, error) {
	refs, err := referencesOf(table)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, ref := range refs {
		res, err := q.db.ExecContext(
			ctx,
			fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", ref.Table, ref.Column, ref.Column),
			to, from,
		)
		if err != nil {
			return total, fmt.Errorf("repoint %s: %w", ref, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DeleteEntity removes a row from an entity table.
func (q *Queries) DeleteEntity(ctx context.Context, table string, id int64) error {
	if _, err := referencesOf(table); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	return err
}
