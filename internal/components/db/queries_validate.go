package db

import (
	"context"
	"database/sql"
)

type MatchXGRow struct {
	MatchID      int64
	NativeID     string
	Status       string
	HomeTeamID   int64
	AwayTeamID   int64
	XgHome       sql.NullFloat64
	XgAway       sql.NullFloat64
	RecordXgHome sql.NullFloat64
	RecordXgAway sql.NullFloat64
	// XgShots is the amount of shots with an expected goals value, the sums
	// only cover those shots.
	XgShots       int64
	ShotXgHome    sql.NullFloat64
	ShotXgAway    sql.NullFloat64
	HomeHasRecord bool
	AwayHasRecord bool
}

const listMatchXG = `SELECT
    m.id, m.native_id, m.status, m.home_team_id, m.away_team_id, m.xg_home, m.xg_away,
    (SELECT xg FROM team_match_record WHERE match_id = m.id AND team_id = m.home_team_id),
    (SELECT xg FROM team_match_record WHERE match_id = m.id AND team_id = m.away_team_id),
    (SELECT COUNT(*) FROM shot_event WHERE match_id = m.id AND xg IS NOT NULL),
    (SELECT SUM(xg) FROM shot_event WHERE match_id = m.id AND team_id = m.home_team_id AND xg IS NOT NULL),
    (SELECT SUM(xg) FROM shot_event WHERE match_id = m.id AND team_id = m.away_team_id AND xg IS NOT NULL),
    EXISTS (SELECT 1 FROM team_match_record WHERE match_id = m.id AND team_id = m.home_team_id),
    EXISTS (SELECT 1 FROM team_match_record WHERE match_id = m.id AND team_id = m.away_team_id)
FROM match m
WHERE m.home_team_id IS NOT NULL AND m.away_team_id IS NOT NULL
ORDER BY m.id`

func (q *Queries) ListMatchXG(ctx context.Context) ([]MatchXGRow, error) {
	rows, err := q.db.QueryContext(ctx, listMatchXG)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (MatchXGRow, error) {
		var i MatchXGRow
		err := row.Scan(
			&i.MatchID,
			&i.NativeID,
			&i.Status,
			&i.HomeTeamID,
			&i.AwayTeamID,
			&i.XgHome,
			&i.XgAway,
			&i.RecordXgHome,
			&i.RecordXgAway,
			&i.XgShots,
			&i.ShotXgHome,
			&i.ShotXgAway,
			&i.HomeHasRecord,
			&i.AwayHasRecord,
		)
		return i, err
	})
}

type TeamGoalRow struct {
	TeamRecordID int64
	MatchID      int64
	NativeID     string
	Status       string
	HomeGoals    sql.NullInt64
	AwayGoals    sql.NullInt64
	TeamID       int64
	IsHome       bool
	GoalsFor     sql.NullInt64
	GoalsAgainst sql.NullInt64
	Result       sql.NullString
}

const listTeamGoals = `SELECT
    tr.id, m.id, m.native_id, m.status, m.home_goals, m.away_goals,
    tr.team_id, tr.is_home, tr.goals_for, tr.goals_against, tr.result
FROM team_match_record tr
JOIN match m ON m.id = tr.match_id
ORDER BY m.id, tr.is_home DESC`

func (q *Queries) ListTeamGoals(ctx context.Context) ([]TeamGoalRow, error) {
	rows, err := q.db.QueryContext(ctx, listTeamGoals)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (TeamGoalRow, error) {
		var i TeamGoalRow
		err := row.Scan(
			&i.TeamRecordID,
			&i.MatchID,
			&i.NativeID,
			&i.Status,
			&i.HomeGoals,
			&i.AwayGoals,
			&i.TeamID,
			&i.IsHome,
			&i.GoalsFor,
			&i.GoalsAgainst,
			&i.Result,
		)
		return i, err
	})
}

type RecordCountRow struct {
	MatchID  int64
	NativeID string
	Status   string
	HasScore bool
	Records  int64
}

const listRecordCounts = `SELECT
    m.id, m.native_id, m.status,
    m.home_goals IS NOT NULL AND m.away_goals IS NOT NULL,
    COUNT(tr.id)
FROM match m
LEFT JOIN team_match_record tr ON tr.match_id = m.id
GROUP BY m.id
ORDER BY m.id`

func (q *Queries) ListRecordCounts(ctx context.Context) ([]RecordCountRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecordCounts)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (RecordCountRow, error) {
		var i RecordCountRow
		err := row.Scan(&i.MatchID, &i.NativeID, &i.Status, &i.HasScore, &i.Records)
		return i, err
	})
}

type TeamTallyRow struct {
	TeamRecordID int64
	MatchID      int64
	NativeID     string
	Date         string
	TeamID       int64
	GoalsFor     sql.NullInt64
	// Tally is the amount of goals counted from the underlying rows (shots or
	// player records) of the team.
	Tally int64
	// Rows is the amount of underlying rows the tally was computed from, in
	// the whole match for shots and for the team for player records.
	Rows int64
	// OpponentOwnGoals are own goals scored by players of the other team.
	OpponentOwnGoals int64
}

const listShotTallies = `SELECT
    tr.id, m.id, m.native_id, m.date, tr.team_id, tr.goals_for,
    (SELECT COUNT(*) FROM shot_event s WHERE s.match_id = m.id AND s.team_id = tr.team_id AND s.outcome = 'Goal'),
    (SELECT COUNT(*) FROM shot_event s WHERE s.match_id = m.id),
    (SELECT coalesce(SUM(pm.own_goals), 0) FROM player_match_record pr
        JOIN player_misc pm ON pm.player_record_id = pr.id
        WHERE pr.match_id = m.id AND pr.team_id != tr.team_id)
FROM team_match_record tr
JOIN match m ON m.id = tr.match_id
WHERE m.date >= ? AND m.status != 'forfeit'
ORDER BY m.id, tr.is_home DESC`

// ListShotTallies counts the goal shots of every team record of a match played
// on or after `since` (YYYY-MM-DD). Forfeited matches are left out.
func (q *Queries) ListShotTallies(ctx context.Context, since string) ([]TeamTallyRow, error) {
	return q.listTallies(ctx, listShotTallies, since)
}

const listPlayerTallies = `SELECT
    tr.id, m.id, m.native_id, m.date, tr.team_id, tr.goals_for,
    (SELECT coalesce(SUM(pr.goals), 0) FROM player_match_record pr WHERE pr.match_id = m.id AND pr.team_id = tr.team_id),
    (SELECT COUNT(*) FROM player_match_record pr WHERE pr.match_id = m.id AND pr.team_id = tr.team_id),
    (SELECT coalesce(SUM(pm.own_goals), 0) FROM player_match_record pr
        JOIN player_misc pm ON pm.player_record_id = pr.id
        WHERE pr.match_id = m.id AND pr.team_id != tr.team_id)
FROM team_match_record tr
JOIN match m ON m.id = tr.match_id
WHERE m.date >= ? AND m.status != 'forfeit'
ORDER BY m.id, tr.is_home DESC`

// ListPlayerTallies sums the player goals of every team record of a match
// played on or after `since` (YYYY-MM-DD). Forfeited matches are left out.
func (q *Queries) ListPlayerTallies(ctx context.Context, since string) ([]TeamTallyRow, error) {
	return q.listTallies(ctx, listPlayerTallies, since)
}

func (q *Queries) listTallies(ctx context.Context, query, since string) ([]TeamTallyRow, error) {
	rows, err := q.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (TeamTallyRow, error) {
		var i TeamTallyRow
		err := row.Scan(
			&i.TeamRecordID,
			&i.MatchID,
			&i.NativeID,
			&i.Date,
			&i.TeamID,
			&i.GoalsFor,
			&i.Tally,
			&i.Rows,
			&i.OpponentOwnGoals,
		)
		return i, err
	})
}

type DenormalizedRow struct {
	Table         string
	RecordID      int64
	MatchID       int64
	NativeID      string
	SeasonID      sql.NullInt64
	MatchSeasonID sql.NullInt64
	MatchDate     sql.NullString
	Date          string
}

const listDenormalizedDrift = `SELECT 'team_match_record', tr.id, m.id, m.native_id, tr.season_id, m.season_id, tr.match_date, m.date
FROM team_match_record tr
JOIN match m ON m.id = tr.match_id
WHERE tr.season_id IS NOT m.season_id OR tr.match_date IS NOT m.date
UNION ALL
SELECT 'player_match_record', pr.id, m.id, m.native_id, NULL, NULL, pr.match_date, m.date
FROM player_match_record pr
JOIN match m ON m.id = pr.match_id
WHERE pr.match_date IS NOT m.date
ORDER BY 3, 1, 2`

// ListDenormalizedDrift returns every record whose copy of the season or the
// date of its match differs from the match.
func (q *Queries) ListDenormalizedDrift(ctx context.Context) ([]DenormalizedRow, error) {
	rows, err := q.db.QueryContext(ctx, listDenormalizedDrift)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row interface{ Scan(...any) error }) (DenormalizedRow, error) {
		var i DenormalizedRow
		err := row.Scan(
			&i.Table,
			&i.RecordID,
			&i.MatchID,
			&i.NativeID,
			&i.SeasonID,
			&i.MatchSeasonID,
			&i.MatchDate,
			&i.Date,
		)
		return i, err
	})
}

const countDenormalized = `SELECT (SELECT COUNT(*) FROM team_match_record) + (SELECT COUNT(*) FROM player_match_record)`

// CountDenormalized returns the amount of rows carrying copies of match attributes.
func (q *Queries) CountDenormalized(ctx context.Context) (int64, error) {
	return q.QueryInt(ctx, countDenormalized)
}

const setTeamRecordDenormalized = `UPDATE team_match_record SET season_id = ?, match_date = ? WHERE id = ?`

func (q *Queries) SetTeamRecordDenormalized(ctx context.Context, id, seasonID int64, date string) error {
	_, err := q.db.ExecContext(ctx, setTeamRecordDenormalized, seasonID, date, id)
	return err
}

const setPlayerRecordMatchDate = `UPDATE player_match_record SET match_date = ? WHERE id = ?`

func (q *Queries) SetPlayerRecordMatchDate(ctx context.Context, id int64, date string) error {
	_, err := q.db.ExecContext(ctx, setPlayerRecordMatchDate, date, id)
	return err
}

const countPlayerRecords = `SELECT COUNT(*) FROM player_match_record`

func (q *Queries) CountPlayerRecords(ctx context.Context) (int64, error) {
	return q.QueryInt(ctx, countPlayerRecords)
}
