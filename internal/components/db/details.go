package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

// Field maps a source statistic onto a column of a detail table.
type Field struct {
	Source string
	Column string
	Float  bool
}

// Ratio is a percentage column derived as 100 * numerator / sum(denominator).
type Ratio struct {
	Column      string
	Numerator   string
	Denominator []string
}

// Of computes the ratio from the component columns of a row, it is null when
// a component is missing or the denominator is zero.
func (r Ratio) Of(values DetailValues) sql.NullFloat64 {
	num := values[r.Numerator]
	if !num.Valid {
		return sql.NullFloat64{}
	}
	var whole float64
	for _, col := range r.Denominator {
		v := values[col]
		if !v.Valid {
			return sql.NullFloat64{}
		}
		whole += v.Float64
	}
	return Percentage(num.Float64, whole)
}

// Percentage returns 100 * part / whole rounded to one decimal, null when
// whole is not positive.
func Percentage(part, whole float64) sql.NullFloat64 {
	if whole <= 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: math.Round(1000*part/whole) / 10, Valid: true}
}

// Pair is a part/whole pair of columns where part <= whole must hold.
type Pair struct {
	Part  string
	Whole string
}

// Category describes one detail table hanging off player_match_record.
type Category struct {
	// Name is also the dotted prefix used by source record fields.
	Name   string
	Table  string
	Fields []Field
	Ratios []Ratio
	Pairs  []Pair
}

// Columns returns every column of the table except the key, in a stable order.
func (c Category) Columns() []string {
	cols := make([]string, 0, len(c.Fields)+len(c.Ratios))
	for _, f := range c.Fields {
		cols = append(cols, f.Column)
	}
	for _, r := range c.Ratios {
		cols = append(cols, r.Column)
	}
	return cols
}

func (c Category) hasColumn(col string) bool {
	for _, existing := range c.Columns() {
		if existing == col {
			return true
		}
	}
	return false
}

var Categories = []Category{
	{
		Name:  "passing",
		Table: "player_passing",
		Fields: []Field{
			{Source: "passes_completed", Column: "passes_completed"},
			{Source: "passes", Column: "passes_attempted"},
			{Source: "passes_total_distance", Column: "total_distance"},
			{Source: "passes_progressive_distance", Column: "progressive_distance"},
			{Source: "passes_completed_short", Column: "short_completed"},
			{Source: "passes_short", Column: "short_attempted"},
			{Source: "passes_completed_medium", Column: "medium_completed"},
			{Source: "passes_medium", Column: "medium_attempted"},
			{Source: "passes_completed_long", Column: "long_completed"},
			{Source: "passes_long", Column: "long_attempted"},
			{Source: "assists", Column: "assists"},
			{Source: "assisted_shots", Column: "key_passes"},
			{Source: "xg_assist", Column: "xa", Float: true},
			{Source: "pass_xa", Column: "pass_xa", Float: true},
			{Source: "passes_into_final_third", Column: "passes_final_third"},
			{Source: "passes_into_penalty_area", Column: "passes_penalty_area"},
			{Source: "crosses_into_penalty_area", Column: "crosses_penalty_area"},
			{Source: "progressive_passes", Column: "progressive_passes"},
		},
		Ratios: []Ratio{
			{Column: "pass_pct", Numerator: "passes_completed", Denominator: []string{"passes_attempted"}},
			{Column: "short_pct", Numerator: "short_completed", Denominator: []string{"short_attempted"}},
			{Column: "medium_pct", Numerator: "medium_completed", Denominator: []string{"medium_attempted"}},
			{Column: "long_pct", Numerator: "long_completed", Denominator: []string{"long_attempted"}},
		},
		Pairs: []Pair{
			{Part: "passes_completed", Whole: "passes_attempted"},
			{Part: "short_completed", Whole: "short_attempted"},
			{Part: "medium_completed", Whole: "medium_attempted"},
			{Part: "long_completed", Whole: "long_attempted"},
		},
	},
	{
		Name:  "pass_types",
		Table: "player_pass_types",
		Fields: []Field{
			{Source: "passes", Column: "passes_attempted"},
			{Source: "passes_completed", Column: "passes_completed"},
			{Source: "passes_live", Column: "live"},
			{Source: "passes_dead", Column: "dead"},
			{Source: "passes_free_kicks", Column: "free_kicks"},
			{Source: "through_balls", Column: "through_balls"},
			{Source: "passes_switches", Column: "switches"},
			{Source: "crosses", Column: "crosses"},
			{Source: "throw_ins", Column: "throw_ins"},
			{Source: "corner_kicks", Column: "corner_kicks"},
			{Source: "corner_kicks_in", Column: "corners_inswinging"},
			{Source: "corner_kicks_out", Column: "corners_outswinging"},
			{Source: "corner_kicks_straight", Column: "corners_straight"},
			{Source: "passes_offsides", Column: "passes_offsides"},
			{Source: "passes_blocked", Column: "passes_blocked"},
		},
		Pairs: []Pair{
			{Part: "passes_completed", Whole: "passes_attempted"},
		},
	},
	{
		Name:  "possession",
		Table: "player_possession",
		Fields: []Field{
			{Source: "touches", Column: "touches"},
			{Source: "touches_def_pen_area", Column: "touches_def_pen"},
			{Source: "touches_def_3rd", Column: "touches_def_3rd"},
			{Source: "touches_mid_3rd", Column: "touches_mid_3rd"},
			{Source: "touches_att_3rd", Column: "touches_att_3rd"},
			{Source: "touches_att_pen_area", Column: "touches_att_pen"},
			{Source: "touches_live_ball", Column: "touches_live"},
			{Source: "take_ons", Column: "take_ons_att"},
			{Source: "take_ons_won", Column: "take_ons_succ"},
			{Source: "take_ons_tackled", Column: "take_ons_tkld"},
			{Source: "carries", Column: "carries"},
			{Source: "carries_distance", Column: "carries_distance"},
			{Source: "carries_progressive_distance", Column: "carries_progressive_distance"},
			{Source: "progressive_carries", Column: "carries_progressive"},
			{Source: "carries_into_final_third", Column: "carries_final_third"},
			{Source: "carries_into_penalty_area", Column: "carries_penalty_area"},
			{Source: "miscontrols", Column: "miscontrols"},
			{Source: "dispossessed", Column: "dispossessed"},
			{Source: "passes_received", Column: "passes_received"},
			{Source: "progressive_passes_received", Column: "progressive_passes_received"},
		},
		Ratios: []Ratio{
			{Column: "take_ons_succ_pct", Numerator: "take_ons_succ", Denominator: []string{"take_ons_att"}},
			{Column: "take_ons_tkld_pct", Numerator: "take_ons_tkld", Denominator: []string{"take_ons_att"}},
		},
		Pairs: []Pair{
			{Part: "take_ons_succ", Whole: "take_ons_att"},
			{Part: "take_ons_tkld", Whole: "take_ons_att"},
		},
	},
	{
		Name:  "defense",
		Table: "player_defense",
		Fields: []Field{
			{Source: "tackles", Column: "tackles"},
			{Source: "tackles_won", Column: "tackles_won"},
			{Source: "tackles_def_3rd", Column: "tackles_def_3rd"},
			{Source: "tackles_mid_3rd", Column: "tackles_mid_3rd"},
			{Source: "tackles_att_3rd", Column: "tackles_att_3rd"},
			{Source: "challenge_tackles", Column: "challenges_tkl"},
			{Source: "challenges", Column: "challenges_att"},
			{Source: "challenges_lost", Column: "challenges_lost"},
			{Source: "blocks", Column: "blocks"},
			{Source: "blocked_shots", Column: "blocks_shots"},
			{Source: "blocked_passes", Column: "blocks_passes"},
			{Source: "interceptions", Column: "interceptions"},
			{Source: "tackles_interceptions", Column: "tackles_interceptions"},
			{Source: "clearances", Column: "clearances"},
			{Source: "errors", Column: "errors"},
		},
		Ratios: []Ratio{
			{Column: "challenges_tkl_pct", Numerator: "challenges_tkl", Denominator: []string{"challenges_att"}},
		},
		Pairs: []Pair{
			{Part: "tackles_won", Whole: "tackles"},
			{Part: "challenges_tkl", Whole: "challenges_att"},
		},
	},
	{
		Name:  "misc",
		Table: "player_misc",
		Fields: []Field{
			{Source: "cards_yellow", Column: "yellow_cards"},
			{Source: "cards_red", Column: "red_cards"},
			{Source: "cards_yellow_red", Column: "second_yellow_cards"},
			{Source: "fouls", Column: "fouls_committed"},
			{Source: "fouled", Column: "fouled"},
			{Source: "offsides", Column: "offsides"},
			{Source: "crosses", Column: "crosses"},
			{Source: "interceptions", Column: "interceptions"},
			{Source: "tackles_won", Column: "tackles_won"},
			{Source: "pens_won", Column: "pens_won"},
			{Source: "pens_conceded", Column: "pens_conceded"},
			{Source: "own_goals", Column: "own_goals"},
			{Source: "ball_recoveries", Column: "ball_recoveries"},
			{Source: "aerials_won", Column: "aerials_won"},
			{Source: "aerials_lost", Column: "aerials_lost"},
		},
		Ratios: []Ratio{
			{Column: "aerials_won_pct", Numerator: "aerials_won", Denominator: []string{"aerials_won", "aerials_lost"}},
		},
	},
	{
		Name:  "keeper",
		Table: "player_goalkeeping",
		Fields: []Field{
			{Source: "gk_shots_on_target_against", Column: "shots_on_target_against"},
			{Source: "gk_goals_against", Column: "goals_against"},
			{Source: "gk_saves", Column: "saves"},
			{Source: "gk_psxg", Column: "psxg", Float: true},
			{Source: "gk_passes_completed_launched", Column: "launched_completed"},
			{Source: "gk_passes_launched", Column: "launched_attempted"},
			{Source: "gk_passes", Column: "passes_attempted"},
			{Source: "gk_passes_throws", Column: "throws"},
			{Source: "gk_goal_kicks", Column: "goal_kicks"},
			{Source: "gk_crosses", Column: "crosses_faced"},
			{Source: "gk_crosses_stopped", Column: "crosses_stopped"},
		},
		Ratios: []Ratio{
			{Column: "save_pct", Numerator: "saves", Denominator: []string{"shots_on_target_against"}},
			{Column: "launched_pct", Numerator: "launched_completed", Denominator: []string{"launched_attempted"}},
			{Column: "crosses_stopped_pct", Numerator: "crosses_stopped", Denominator: []string{"crosses_faced"}},
		},
		Pairs: []Pair{
			{Part: "saves", Whole: "shots_on_target_against"},
			{Part: "launched_completed", Whole: "launched_attempted"},
			{Part: "crosses_stopped", Whole: "crosses_faced"},
		},
	},
}

// CategoryByName returns the category with the given dotted prefix.
func CategoryByName(name string) (Category, bool) {
	for _, c := range Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// DetailValues are the values of a detail row keyed by column.
type DetailValues map[string]sql.NullFloat64

// Int returns the value of an integer column.
func (v DetailValues) Int(col string) sql.NullInt64 {
	f := v[col]
	return sql.NullInt64{Int64: int64(f.Float64), Valid: f.Valid}
}

// UpsertDetail writes the full detail row of a player record, columns missing
// from `values` are stored as null so that a re-ingest replaces in place.
func (q *Queries) UpsertDetail(ctx context.Context, cat Category, playerRecordID int64, values map[string]any) error {
	for col := range values {
		if !cat.hasColumn(col) {
			return fmt.Errorf("unknown column '%s' for %s", col, cat.Table)
		}
	}

	cols := cat.Columns()
	placeholders := make([]string, len(cols))
	updates := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	args = append(args, playerRecordID)
	for i, col := range cols {
		placeholders[i] = "?"
		updates[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		args = append(args, values[col])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (player_record_id, %s) VALUES (?, %s) ON CONFLICT (player_record_id) DO UPDATE SET %s",
		cat.Table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

func (q *Queries) scanDetail(cat Category, row interface{ Scan(...any) error }) (int64, DetailValues, error) {
	cols := cat.Columns()
	var id int64
	dest := make([]any, len(cols)+1)
	dest[0] = &id
	scanned := make([]sql.NullFloat64, len(cols))
	for i := range cols {
		dest[i+1] = &scanned[i]
	}
	if err := row.Scan(dest...); err != nil {
		return 0, nil, err
	}
	values := DetailValues{}
	for i, col := range cols {
		values[col] = scanned[i]
	}
	return id, values, nil
}

// GetDetail reads the detail row of a player record.
func (q *Queries) GetDetail(ctx context.Context, cat Category, playerRecordID int64) (DetailValues, error) {
	query := fmt.Sprintf(
		"SELECT player_record_id, %s FROM %s WHERE player_record_id = ?",
		strings.Join(cat.Columns(), ", "),
		cat.Table,
	)
	_, values, err := q.scanDetail(cat, q.db.QueryRowContext(ctx, query, playerRecordID))
	return values, err
}

type DetailRow struct {
	PlayerRecordID int64
	Values         DetailValues
}

// ListDetails reads every row of a detail table.
func (q *Queries) ListDetails(ctx context.Context, cat Category) ([]DetailRow, error) {
	query := fmt.Sprintf(
		"SELECT player_record_id, %s FROM %s ORDER BY player_record_id",
		strings.Join(cat.Columns(), ", "),
		cat.Table,
	)
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (DetailRow, error) {
		id, values, err := q.scanDetail(cat, row)
		return DetailRow{PlayerRecordID: id, Values: values}, err
	})
}

// UpdateDetailColumns sets a subset of the columns of a detail row.
func (q *Queries) UpdateDetailColumns(ctx context.Context, cat Category, playerRecordID int64, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	sets := make([]string, 0, len(values))
	args := make([]any, 0, len(values)+1)
	for _, col := range cat.Columns() {
		v, ok := values[col]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, v)
	}
	if len(sets) != len(values) {
		return fmt.Errorf("unknown column for %s", cat.Table)
	}
	args = append(args, playerRecordID)
	_, err := q.db.ExecContext(
		ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE player_record_id = ?", cat.Table, strings.Join(sets, ", ")),
		args...,
	)
	return err
}
