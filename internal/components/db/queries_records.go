package db

import (
	"context"
	"database/sql"
)

const teamRecordColumns = `id, match_id, team_id, opponent_team_id, is_home, goals_for, goals_against,
result, possession_pct, passes_completed, passes_attempted, passing_acc_pct, shots,
shots_on_target, saves, tackles, interceptions, clearances, fouls, corners, crosses,
offsides, aerials_won, yellow_cards, red_cards, xg, season_id, match_date`

func scanTeamRecord(row interface{ Scan(...any) error }) (TeamMatchRecord, error) {
	var i TeamMatchRecord
	err := row.Scan(
		&i.ID,
		&i.MatchID,
		&i.TeamID,
		&i.OpponentTeamID,
		&i.IsHome,
		&i.GoalsFor,
		&i.GoalsAgainst,
		&i.Result,
		&i.PossessionPct,
		&i.PassesCompleted,
		&i.PassesAttempted,
		&i.PassingAccPct,
		&i.Shots,
		&i.ShotsOnTarget,
		&i.Saves,
		&i.Tackles,
		&i.Interceptions,
		&i.Clearances,
		&i.Fouls,
		&i.Corners,
		&i.Crosses,
		&i.Offsides,
		&i.AerialsWon,
		&i.YellowCards,
		&i.RedCards,
		&i.Xg,
		&i.SeasonID,
		&i.MatchDate,
	)
	return i, err
}

const getTeamRecord = `SELECT ` + teamRecordColumns + ` FROM team_match_record WHERE match_id = ? AND team_id = ?`

func (q *Queries) GetTeamRecord(ctx context.Context, matchID, teamID int64) (TeamMatchRecord, error) {
	return scanTeamRecord(q.db.QueryRowContext(ctx, getTeamRecord, matchID, teamID))
}

const getTeamRecordByID = `SELECT ` + teamRecordColumns + ` FROM team_match_record WHERE id = ?`

func (q *Queries) GetTeamRecordByID(ctx context.Context, id int64) (TeamMatchRecord, error) {
	return scanTeamRecord(q.db.QueryRowContext(ctx, getTeamRecordByID, id))
}

const listTeamRecordsForMatch = `SELECT ` + teamRecordColumns + ` FROM team_match_record
WHERE match_id = ? ORDER BY is_home DESC, id`

func (q *Queries) ListTeamRecordsForMatch(ctx context.Context, matchID int64) ([]TeamMatchRecord, error) {
	rows, err := q.db.QueryContext(ctx, listTeamRecordsForMatch, matchID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTeamRecord)
}

const upsertTeamRecord = `INSERT INTO team_match_record (
    match_id, team_id, opponent_team_id, is_home, goals_for, goals_against,
    result, possession_pct, passes_completed, passes_attempted, passing_acc_pct, shots,
    shots_on_target, saves, tackles, interceptions, clearances, fouls, corners, crosses,
    offsides, aerials_won, yellow_cards, red_cards, xg, season_id, match_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, team_id) DO UPDATE SET
    opponent_team_id = excluded.opponent_team_id,
    is_home = excluded.is_home,
    goals_for = excluded.goals_for,
    goals_against = excluded.goals_against,
    result = excluded.result,
    possession_pct = excluded.possession_pct,
    passes_completed = excluded.passes_completed,
    passes_attempted = excluded.passes_attempted,
    passing_acc_pct = excluded.passing_acc_pct,
    shots = excluded.shots,
    shots_on_target = excluded.shots_on_target,
    saves = excluded.saves,
    tackles = excluded.tackles,
    interceptions = excluded.interceptions,
    clearances = excluded.clearances,
    fouls = excluded.fouls,
    corners = excluded.corners,
    crosses = excluded.crosses,
    offsides = excluded.offsides,
    aerials_won = excluded.aerials_won,
    yellow_cards = excluded.yellow_cards,
    red_cards = excluded.red_cards,
    xg = excluded.xg,
    season_id = excluded.season_id,
    match_date = excluded.match_date
RETURNING id`

// UpsertTeamRecord inserts or replaces the record of a team in a match and
// returns its id.
func (q *Queries) UpsertTeamRecord(ctx context.Context, arg TeamMatchRecord) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, upsertTeamRecord,
		arg.MatchID,
		arg.TeamID,
		arg.OpponentTeamID,
		arg.IsHome,
		arg.GoalsFor,
		arg.GoalsAgainst,
		arg.Result,
		arg.PossessionPct,
		arg.PassesCompleted,
		arg.PassesAttempted,
		arg.PassingAccPct,
		arg.Shots,
		arg.ShotsOnTarget,
		arg.Saves,
		arg.Tackles,
		arg.Interceptions,
		arg.Clearances,
		arg.Fouls,
		arg.Corners,
		arg.Crosses,
		arg.Offsides,
		arg.AerialsWon,
		arg.YellowCards,
		arg.RedCards,
		arg.Xg,
		arg.SeasonID,
		arg.MatchDate,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

type LinkOpponentParams struct {
	ID             int64
	OpponentTeamID int64
	GoalsAgainst   sql.NullInt64
	Result         sql.NullString
}

const linkOpponent = `UPDATE team_match_record SET
    opponent_team_id = ?,
    goals_against = coalesce(?, goals_against),
    result = coalesce(?, result)
WHERE id = ?`

// LinkOpponent fills the opponent side of a team record once its sibling is known.
func (q *Queries) LinkOpponent(ctx context.Context, arg LinkOpponentParams) error {
	_, err := q.db.ExecContext(ctx, linkOpponent, arg.OpponentTeamID, arg.GoalsAgainst, arg.Result, arg.ID)
	return err
}

type SetTeamRecordGoalsParams struct {
	ID           int64
	GoalsFor     sql.NullInt64
	GoalsAgainst sql.NullInt64
	Result       sql.NullString
}

const setTeamRecordGoals = `UPDATE team_match_record SET goals_for = ?, goals_against = ?, result = ? WHERE id = ?`

func (q *Queries) SetTeamRecordGoals(ctx context.Context, arg SetTeamRecordGoalsParams) error {
	_, err := q.db.ExecContext(ctx, setTeamRecordGoals, arg.GoalsFor, arg.GoalsAgainst, arg.Result, arg.ID)
	return err
}

const setTeamRecordXG = `UPDATE team_match_record SET xg = ? WHERE match_id = ? AND team_id = ?`

func (q *Queries) SetTeamRecordXG(ctx context.Context, matchID, teamID int64, xg sql.NullFloat64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setTeamRecordXG, xg, matchID, teamID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setMatchXG = `UPDATE match SET xg_home = ?, xg_away = ? WHERE id = ?`

func (q *Queries) SetMatchXG(ctx context.Context, id int64, home, away sql.NullFloat64) error {
	_, err := q.db.ExecContext(ctx, setMatchXG, home, away, id)
	return err
}

const linkPlayerRecords = `UPDATE player_match_record SET team_record_id = ?
WHERE match_id = ? AND team_id = ? AND (team_record_id IS NULL OR team_record_id != ?)`

// LinkPlayerRecords points the player records of a team in a match at the
// team record and returns how many were changed.
func (q *Queries) LinkPlayerRecords(ctx context.Context, matchID, teamID, teamRecordID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, linkPlayerRecords, teamRecordID, matchID, teamID, teamRecordID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const playerRecordColumns = `id, match_id, player_id, team_id, team_record_id, position, shirt_number,
minutes, started, goals, assists, pens_made, pens_att, shots, shots_on_target,
yellow_cards, red_cards, xg, npxg, xag, match_date`

func scanPlayerRecord(row interface{ Scan(...any) error }) (PlayerMatchRecord, error) {
	var i PlayerMatchRecord
	err := row.Scan(
		&i.ID,
		&i.MatchID,
		&i.PlayerID,
		&i.TeamID,
		&i.TeamRecordID,
		&i.Position,
		&i.ShirtNumber,
		&i.Minutes,
		&i.Started,
		&i.Goals,
		&i.Assists,
		&i.PensMade,
		&i.PensAtt,
		&i.Shots,
		&i.ShotsOnTarget,
		&i.YellowCards,
		&i.RedCards,
		&i.Xg,
		&i.Npxg,
		&i.Xag,
		&i.MatchDate,
	)
	return i, err
}

const getPlayerRecord = `SELECT ` + playerRecordColumns + ` FROM player_match_record WHERE match_id = ? AND player_id = ?`

func (q *Queries) GetPlayerRecord(ctx context.Context, matchID, playerID int64) (PlayerMatchRecord, error) {
	return scanPlayerRecord(q.db.QueryRowContext(ctx, getPlayerRecord, matchID, playerID))
}

const listPlayerRecordsForMatch = `SELECT ` + playerRecordColumns + ` FROM player_match_record
WHERE match_id = ? ORDER BY id`

func (q *Queries) ListPlayerRecordsForMatch(ctx context.Context, matchID int64) ([]PlayerMatchRecord, error) {
	rows, err := q.db.QueryContext(ctx, listPlayerRecordsForMatch, matchID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPlayerRecord)
}

const upsertPlayerRecord = `INSERT INTO player_match_record (
    match_id, player_id, team_id, team_record_id, position, shirt_number,
    minutes, started, goals, assists, pens_made, pens_att, shots, shots_on_target,
    yellow_cards, red_cards, xg, npxg, xag, match_date
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, player_id) DO UPDATE SET
    team_id = excluded.team_id,
    team_record_id = CASE
        WHEN excluded.team_id IS NOT player_match_record.team_id THEN excluded.team_record_id
        ELSE coalesce(excluded.team_record_id, player_match_record.team_record_id)
    END,
    position = excluded.position,
    shirt_number = excluded.shirt_number,
    minutes = excluded.minutes,
    started = excluded.started,
    goals = excluded.goals,
    assists = excluded.assists,
    pens_made = excluded.pens_made,
    pens_att = excluded.pens_att,
    shots = excluded.shots,
    shots_on_target = excluded.shots_on_target,
    yellow_cards = excluded.yellow_cards,
    red_cards = excluded.red_cards,
    xg = excluded.xg,
    npxg = excluded.npxg,
    xag = excluded.xag,
    match_date = excluded.match_date
RETURNING id`

// UpsertPlayerRecord inserts or replaces the record of a player in a match and
// returns its id.
func (q *Queries) UpsertPlayerRecord(ctx context.Context, arg PlayerMatchRecord) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, upsertPlayerRecord,
		arg.MatchID,
		arg.PlayerID,
		arg.TeamID,
		arg.TeamRecordID,
		arg.Position,
		arg.ShirtNumber,
		arg.Minutes,
		arg.Started,
		arg.Goals,
		arg.Assists,
		arg.PensMade,
		arg.PensAtt,
		arg.Shots,
		arg.ShotsOnTarget,
		arg.YellowCards,
		arg.RedCards,
		arg.Xg,
		arg.Npxg,
		arg.Xag,
		arg.MatchDate,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const shotColumns = `id, match_id, seq, minute, player_id, player_native_id, player_name, team_id,
xg, psxg, outcome, distance, body_part, notes, sca1_player, sca1_event, sca2_player, sca2_event`

func scanShot(row interface{ Scan(...any) error }) (ShotEvent, error) {
	var i ShotEvent
	err := row.Scan(
		&i.ID,
		&i.MatchID,
		&i.Seq,
		&i.Minute,
		&i.PlayerID,
		&i.PlayerNativeID,
		&i.PlayerName,
		&i.TeamID,
		&i.Xg,
		&i.Psxg,
		&i.Outcome,
		&i.Distance,
		&i.BodyPart,
		&i.Notes,
		&i.Sca1Player,
		&i.Sca1Event,
		&i.Sca2Player,
		&i.Sca2Event,
	)
	return i, err
}

const listShotsForMatch = `SELECT ` + shotColumns + ` FROM shot_event WHERE match_id = ? ORDER BY seq`

func (q *Queries) ListShotsForMatch(ctx context.Context, matchID int64) ([]ShotEvent, error) {
	rows, err := q.db.QueryContext(ctx, listShotsForMatch, matchID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanShot)
}

const upsertShot = `INSERT INTO shot_event (
    match_id, seq, minute, player_id, player_native_id, player_name, team_id,
    xg, psxg, outcome, distance, body_part, notes, sca1_player, sca1_event, sca2_player, sca2_event
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, seq) DO UPDATE SET
    minute = excluded.minute,
    player_id = excluded.player_id,
    player_native_id = excluded.player_native_id,
    player_name = excluded.player_name,
    team_id = excluded.team_id,
    xg = excluded.xg,
    psxg = excluded.psxg,
    outcome = excluded.outcome,
    distance = excluded.distance,
    body_part = excluded.body_part,
    notes = excluded.notes,
    sca1_player = excluded.sca1_player,
    sca1_event = excluded.sca1_event,
    sca2_player = excluded.sca2_player,
    sca2_event = excluded.sca2_event
RETURNING id`

// UpsertShot inserts or replaces the shot at the given position of a match.
func (q *Queries) UpsertShot(ctx context.Context, arg ShotEvent) (int64, error) {
	row := q.db.QueryRowContext(
		ctx, upsertShot,
		arg.MatchID,
		arg.Seq,
		arg.Minute,
		arg.PlayerID,
		arg.PlayerNativeID,
		arg.PlayerName,
		arg.TeamID,
		arg.Xg,
		arg.Psxg,
		arg.Outcome,
		arg.Distance,
		arg.BodyPart,
		arg.Notes,
		arg.Sca1Player,
		arg.Sca1Event,
		arg.Sca2Player,
		arg.Sca2Event,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}
