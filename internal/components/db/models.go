package db

import (
	"database/sql"
)

type Season struct {
	ID   int64
	Year int64
}

type Team struct {
	ID       int64
	NativeID string
	SeasonID int64
	Name     string
}

type Player struct {
	ID       int64
	NativeID string
	Name     string
}

type Venue struct {
	ID         int64
	NativeID   string
	Name       string
	Address    string
	Unresolved bool
}

type Match struct {
	ID          int64
	NativeID    string
	Date        string
	SeasonID    sql.NullInt64
	Competition string
	HomeTeamID  sql.NullInt64
	AwayTeamID  sql.NullInt64
	VenueID     sql.NullInt64
	HomeGoals   sql.NullInt64
	AwayGoals   sql.NullInt64
	XgHome      sql.NullFloat64
	XgAway      sql.NullFloat64
	Status      string
}

type TeamMatchRecord struct {
	ID              int64
	MatchID         int64
	TeamID          int64
	OpponentTeamID  sql.NullInt64
	IsHome          bool
	GoalsFor        sql.NullInt64
	GoalsAgainst    sql.NullInt64
	Result          sql.NullString
	PossessionPct   sql.NullFloat64
	PassesCompleted sql.NullInt64
	PassesAttempted sql.NullInt64
	PassingAccPct   sql.NullFloat64
	Shots           sql.NullInt64
	ShotsOnTarget   sql.NullInt64
	Saves           sql.NullInt64
	Tackles         sql.NullInt64
	Interceptions   sql.NullInt64
	Clearances      sql.NullInt64
	Fouls           sql.NullInt64
	Corners         sql.NullInt64
	Crosses         sql.NullInt64
	Offsides        sql.NullInt64
	AerialsWon      sql.NullInt64
	YellowCards     sql.NullInt64
	RedCards        sql.NullInt64
	Xg              sql.NullFloat64
	SeasonID        int64
	MatchDate       string
}

type PlayerMatchRecord struct {
	ID            int64
	MatchID       int64
	PlayerID      int64
	TeamID        int64
	TeamRecordID  sql.NullInt64
	Position      string
	ShirtNumber   sql.NullInt64
	Minutes       int64
	Started       bool
	Goals         sql.NullInt64
	Assists       sql.NullInt64
	PensMade      sql.NullInt64
	PensAtt       sql.NullInt64
	Shots         sql.NullInt64
	ShotsOnTarget sql.NullInt64
	YellowCards   sql.NullInt64
	RedCards      sql.NullInt64
	Xg            sql.NullFloat64
	Npxg          sql.NullFloat64
	Xag           sql.NullFloat64
	MatchDate     string
}

type ShotEvent struct {
	ID             int64
	MatchID        int64
	Seq            int64
	Minute         sql.NullInt64
	PlayerID       sql.NullInt64
	PlayerNativeID string
	PlayerName     string
	TeamID         int64
	Xg             sql.NullFloat64
	Psxg           sql.NullFloat64
	Outcome        string
	Distance       sql.NullInt64
	BodyPart       string
	Notes          string
	Sca1Player     string
	Sca1Event      string
	Sca2Player     string
	Sca2Event      string
}

type SchemaMigration struct {
	Name      string
	AppliedAt int64
}
