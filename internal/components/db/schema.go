package db

import _ "embed"

// Schema is the baseline canonical schema. The queries in this package target
// the schema after every built-in migration step has been applied, see
// internal/migrate.
//
//go:embed schema.sql
var Schema string

// Match statuses.
const (
	MatchPending  = "pending"
	MatchComplete = "complete"
	MatchForfeit  = "forfeit"
)

// Shot outcomes, the only values shot_event.outcome may hold.
const (
	OutcomeGoal           = "Goal"
	OutcomeSaved          = "Saved"
	OutcomeOffTarget      = "Off Target"
	OutcomeBlocked        = "Blocked"
	OutcomeWoodwork       = "Woodwork"
	OutcomeSavedOffTarget = "Saved off Target"
)

// Match results from the perspective of a team record.
const (
	ResultWin  = "W"
	ResultLoss = "L"
	ResultDraw = "D"
)

// ResultOf returns the result of a team that scored goalsFor and conceded
// goalsAgainst.
func ResultOf(goalsFor, goalsAgainst int64) string {
	switch {
	case goalsFor > goalsAgainst:
		return ResultWin
	case goalsFor < goalsAgainst:
		return ResultLoss
	default:
		return ResultDraw
	}
}
