package db

import (
	"context"
	"database/sql"
)

const getSeasonByYear = `SELECT id, year FROM season WHERE year = ?`

func (q *Queries) GetSeasonByYear(ctx context.Context, year int64) (Season, error) {
	row := q.db.QueryRowContext(ctx, getSeasonByYear, year)
	var i Season
	err := row.Scan(&i.ID, &i.Year)
	return i, err
}

const getSeason = `SELECT id, year FROM season WHERE id = ?`

func (q *Queries) GetSeason(ctx context.Context, id int64) (Season, error) {
	row := q.db.QueryRowContext(ctx, getSeason, id)
	var i Season
	err := row.Scan(&i.ID, &i.Year)
	return i, err
}

const createSeason = `INSERT INTO season (year) VALUES (?) ON CONFLICT (year) DO NOTHING`

func (q *Queries) CreateSeason(ctx context.Context, year int64) error {
	_, err := q.db.ExecContext(ctx, createSeason, year)
	return err
}

const listSeasons = `SELECT id, year FROM season ORDER BY year`

func (q *Queries) ListSeasons(ctx context.Context) ([]Season, error) {
	rows, err := q.db.QueryContext(ctx, listSeasons)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Season
	for rows.Next() {
		var i Season
		if err := rows.Scan(&i.ID, &i.Year); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const teamColumns = `id, native_id, season_id, name`

func scanTeam(row interface{ Scan(...any) error }) (Team, error) {
	var i Team
	err := row.Scan(&i.ID, &i.NativeID, &i.SeasonID, &i.Name)
	return i, err
}

const getTeam = `SELECT ` + teamColumns + ` FROM team WHERE native_id = ? AND season_id = ?`

func (q *Queries) GetTeam(ctx context.Context, nativeID string, seasonID int64) (Team, error) {
	return scanTeam(q.db.QueryRowContext(ctx, getTeam, nativeID, seasonID))
}

const getTeamByID = `SELECT ` + teamColumns + ` FROM team WHERE id = ?`

func (q *Queries) GetTeamByID(ctx context.Context, id int64) (Team, error) {
	return scanTeam(q.db.QueryRowContext(ctx, getTeamByID, id))
}

const listTeamsByNativeID = `SELECT ` + teamColumns + ` FROM team WHERE native_id = ? ORDER BY season_id`

func (q *Queries) ListTeamsByNativeID(ctx context.Context, nativeID string) ([]Team, error) {
	rows, err := q.db.QueryContext(ctx, listTeamsByNativeID, nativeID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTeam)
}

const listTeams = `SELECT ` + teamColumns + ` FROM team ORDER BY id`

func (q *Queries) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := q.db.QueryContext(ctx, listTeams)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTeam)
}

type CreateTeamParams struct {
	NativeID string
	SeasonID int64
	Name     string
}

const createTeam = `INSERT INTO team (native_id, season_id, name) VALUES (?, ?, ?)
ON CONFLICT (native_id, season_id) DO NOTHING`

func (q *Queries) CreateTeam(ctx context.Context, arg CreateTeamParams) error {
	_, err := q.db.ExecContext(ctx, createTeam, arg.NativeID, arg.SeasonID, arg.Name)
	return err
}

const fillTeamName = `UPDATE team SET name = ? WHERE id = ? AND name = ''`

// FillTeamName sets the name of a team only if it is not known yet.
func (q *Queries) FillTeamName(ctx context.Context, id int64, name string) error {
	_, err := q.db.ExecContext(ctx, fillTeamName, name, id)
	return err
}

const playerColumns = `id, native_id, name`

func scanPlayer(row interface{ Scan(...any) error }) (Player, error) {
	var i Player
	err := row.Scan(&i.ID, &i.NativeID, &i.Name)
	return i, err
}

const getPlayer = `SELECT ` + playerColumns + ` FROM player WHERE native_id = ?`

func (q *Queries) GetPlayer(ctx context.Context, nativeID string) (Player, error) {
	return scanPlayer(q.db.QueryRowContext(ctx, getPlayer, nativeID))
}

const getPlayerByID = `SELECT ` + playerColumns + ` FROM player WHERE id = ?`

func (q *Queries) GetPlayerByID(ctx context.Context, id int64) (Player, error) {
	return scanPlayer(q.db.QueryRowContext(ctx, getPlayerByID, id))
}

const listPlayers = `SELECT ` + playerColumns + ` FROM player ORDER BY id`

func (q *Queries) ListPlayers(ctx context.Context) ([]Player, error) {
	rows, err := q.db.QueryContext(ctx, listPlayers)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPlayer)
}

const createPlayer = `INSERT INTO player (native_id, name) VALUES (?, ?) ON CONFLICT (native_id) DO NOTHING`

func (q *Queries) CreatePlayer(ctx context.Context, nativeID, name string) error {
	_, err := q.db.ExecContext(ctx, createPlayer, nativeID, name)
	return err
}

const fillPlayerName = `UPDATE player SET name = ? WHERE id = ? AND name = ''`

// FillPlayerName sets the name of a player only if it is not known yet.
func (q *Queries) FillPlayerName(ctx context.Context, id int64, name string) error {
	_, err := q.db.ExecContext(ctx, fillPlayerName, name, id)
	return err
}

const venueColumns = `id, native_id, name, address, unresolved`

func scanVenue(row interface{ Scan(...any) error }) (Venue, error) {
	var i Venue
	err := row.Scan(&i.ID, &i.NativeID, &i.Name, &i.Address, &i.Unresolved)
	return i, err
}

const getVenue = `SELECT ` + venueColumns + ` FROM venue WHERE native_id = ?`

func (q *Queries) GetVenue(ctx context.Context, nativeID string) (Venue, error) {
	return scanVenue(q.db.QueryRowContext(ctx, getVenue, nativeID))
}

const getVenueByID = `SELECT ` + venueColumns + ` FROM venue WHERE id = ?`

func (q *Queries) GetVenueByID(ctx context.Context, id int64) (Venue, error) {
	return scanVenue(q.db.QueryRowContext(ctx, getVenueByID, id))
}

const listVenues = `SELECT ` + venueColumns + ` FROM venue ORDER BY id`

func (q *Queries) ListVenues(ctx context.Context) ([]Venue, error) {
	rows, err := q.db.QueryContext(ctx, listVenues)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVenue)
}

type CreateVenueParams struct {
	NativeID   string
	Name       string
	Address    string
	Unresolved bool
}

const createVenue = `INSERT INTO venue (native_id, name, address, unresolved) VALUES (?, ?, ?, ?)
ON CONFLICT (native_id) DO NOTHING`

func (q *Queries) CreateVenue(ctx context.Context, arg CreateVenueParams) error {
	_, err := q.db.ExecContext(ctx, createVenue, arg.NativeID, arg.Name, arg.Address, arg.Unresolved)
	return err
}

const resolveVenue = `UPDATE venue SET address = ?, unresolved = 0 WHERE id = ? AND unresolved = 1`

// ResolveVenue fills in the address of a placeholder venue.
func (q *Queries) ResolveVenue(ctx context.Context, id int64, address string) error {
	_, err := q.db.ExecContext(ctx, resolveVenue, address, id)
	return err
}

const matchColumns = `id, native_id, date, season_id, competition, home_team_id, away_team_id,
venue_id, home_goals, away_goals, xg_home, xg_away, status`

func scanMatch(row interface{ Scan(...any) error }) (Match, error) {
	var i Match
	err := row.Scan(
		&i.ID,
		&i.NativeID,
		&i.Date,
		&i.SeasonID,
		&i.Competition,
		&i.HomeTeamID,
		&i.AwayTeamID,
		&i.VenueID,
		&i.HomeGoals,
		&i.AwayGoals,
		&i.XgHome,
		&i.XgAway,
		&i.Status,
	)
	return i, err
}

const getMatch = `SELECT ` + matchColumns + ` FROM match WHERE native_id = ?`

func (q *Queries) GetMatch(ctx context.Context, nativeID string) (Match, error) {
	return scanMatch(q.db.QueryRowContext(ctx, getMatch, nativeID))
}

const getMatchByID = `SELECT ` + matchColumns + ` FROM match WHERE id = ?`

func (q *Queries) GetMatchByID(ctx context.Context, id int64) (Match, error) {
	return scanMatch(q.db.QueryRowContext(ctx, getMatchByID, id))
}

const listMatches = `SELECT ` + matchColumns + ` FROM match ORDER BY date, id`

func (q *Queries) ListMatches(ctx context.Context) ([]Match, error) {
	rows, err := q.db.QueryContext(ctx, listMatches)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanMatch)
}

type CreateMatchParams struct {
	NativeID    string
	Date        string
	SeasonID    int64
	Competition string
	HomeTeamID  int64
	AwayTeamID  int64
	VenueID     sql.NullInt64
}

const createMatch = `INSERT INTO match (native_id, date, season_id, competition, home_team_id, away_team_id, venue_id, status)
VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')
ON CONFLICT (native_id) DO NOTHING`

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) error {
	_, err := q.db.ExecContext(
		ctx, createMatch,
		arg.NativeID,
		arg.Date,
		arg.SeasonID,
		arg.Competition,
		arg.HomeTeamID,
		arg.AwayTeamID,
		arg.VenueID,
	)
	return err
}

type UpdateMatchParams struct {
	ID          int64
	Competition string
	VenueID     sql.NullInt64
	HomeGoals   sql.NullInt64
	AwayGoals   sql.NullInt64
	XgHome      sql.NullFloat64
	XgAway      sql.NullFloat64
	Status      string
}

const updateMatch = `UPDATE match SET
    competition = CASE WHEN ? != '' THEN ? ELSE competition END,
    venue_id = coalesce(?, venue_id),
    home_goals = coalesce(?, home_goals),
    away_goals = coalesce(?, away_goals),
    xg_home = coalesce(?, xg_home),
    xg_away = coalesce(?, xg_away),
    status = CASE WHEN ? != '' THEN ? ELSE status END
WHERE id = ?`

// UpdateMatch corrects the mutable attributes of a match, null or empty
// arguments leave the stored value as is.
func (q *Queries) UpdateMatch(ctx context.Context, arg UpdateMatchParams) error {
	_, err := q.db.ExecContext(
		ctx, updateMatch,
		arg.Competition, arg.Competition,
		arg.VenueID,
		arg.HomeGoals,
		arg.AwayGoals,
		arg.XgHome,
		arg.XgAway,
		arg.Status, arg.Status,
		arg.ID,
	)
	return err
}

const setMatchStatus = `UPDATE match SET status = ? WHERE id = ?`

func (q *Queries) SetMatchStatus(ctx context.Context, id int64, status string) error {
	_, err := q.db.ExecContext(ctx, setMatchStatus, status, id)
	return err
}

func collect[T any](rows *sql.Rows, scan func(row interface{ Scan(...any) error }) (T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		i, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
