package migrate

// Builtin are the steps taking the baseline schema to the schema the rest of
// the module is written against, in the order they must be applied.
var Builtin = []Step{
	AddNotNullColumn(NotNullColumn{
		Name:   "0001_match_status",
		Table:  "match",
		Column: "status",
		Type:   "TEXT",
		Check:  "status IN ('pending', 'complete', 'forfeit')",
		Backfill: `UPDATE match SET status = CASE
    WHEN (SELECT COUNT(*) FROM team_match_record WHERE match_id = match.id) = 2 THEN 'complete'
    ELSE 'pending'
END
WHERE status IS NULL`,
	}),
	AddNotNullColumn(NotNullColumn{
		Name:   "0002_team_record_season",
		Table:  "team_match_record",
		Column: "season_id",
		Type:   "INTEGER",
		Backfill: `UPDATE team_match_record
SET season_id = (SELECT season_id FROM match WHERE match.id = team_match_record.match_id)
WHERE season_id IS NULL`,
		Index: true,
	}),
	AddNotNullColumn(NotNullColumn{
		Name:   "0003_player_record_match_date",
		Table:  "player_match_record",
		Column: "match_date",
		Type:   "TEXT",
		Backfill: `UPDATE player_match_record
SET match_date = (SELECT date FROM match WHERE match.id = player_match_record.match_id)
WHERE match_date IS NULL`,
	}),
	RenameColumn("0004_team_record_goals_rename", "team_match_record", "goals", "goals_for"),
	AddNotNullColumn(NotNullColumn{
		Name:   "0005_team_record_match_date",
		Table:  "team_match_record",
		Column: "match_date",
		Type:   "TEXT",
		Backfill: `UPDATE team_match_record
SET match_date = (SELECT date FROM match WHERE match.id = team_match_record.match_id)
WHERE match_date IS NULL`,
	}),
}

// StepByName returns the built-in step with the given name.
func StepByName(name string) (Step, bool) {
	for _, s := range Builtin {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
