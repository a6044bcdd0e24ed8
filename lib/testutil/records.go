package testutil

import (
	"fmt"

	"nwsl-backend/internal/source"
)

// Fields is a shorthand for the fields of a source record.
type Fields = map[string]any

func merge(base Fields, extra []Fields) Fields {
	for _, e := range extra {
		for k, v := range e {
			base[k] = v
		}
	}
	return base
}

// MatchRecord builds a match record played in the 2024 season.
func MatchRecord(native, date, home, away string, homeGoals, awayGoals int, extra ...Fields) source.Record {
	return source.Record{
		Kind:     source.KindMatch,
		NativeID: native,
		Fields: merge(Fields{
			"date":           date,
			"season":         "2024",
			"competition":    "NWSL",
			"home_team":      home,
			"home_team_name": "Team " + home,
			"away_team":      away,
			"away_team_name": "Team " + away,
			"home_goals":     fmt.Sprint(homeGoals),
			"away_goals":     fmt.Sprint(awayGoals),
		}, extra),
		Provenance: source.Provenance{Document: native + ".html"},
	}
}

// TeamRecord builds the record of a team in a match.
func TeamRecord(match, team string, goals int, extra ...Fields) source.Record {
	return source.Record{
		Kind:     source.KindTeam,
		NativeID: match + "/" + team,
		Fields: merge(Fields{
			"match": match,
			"team":  team,
			"goals": fmt.Sprint(goals),
		}, extra),
		Provenance: source.Provenance{Document: match + ".html", Table: "team_stats"},
	}
}

// PlayerRecord builds the record of a player in a match.
func PlayerRecord(match, team, player string, minutes int, extra ...Fields) source.Record {
	return source.Record{
		Kind:     source.KindPlayer,
		NativeID: match + "/" + player,
		Fields: merge(Fields{
			"match":       match,
			"team":        team,
			"player":      player,
			"player_name": "Player " + player,
			"minutes":     fmt.Sprint(minutes),
		}, extra),
		Provenance: source.Provenance{Document: match + ".html", Table: "stats_" + team + "_summary"},
	}
}

// ShotRecord builds a shot of a match.
func ShotRecord(match string, seq int, team, outcome string, xg float64, extra ...Fields) source.Record {
	return source.Record{
		Kind:     source.KindShot,
		NativeID: fmt.Sprintf("%s/%d", match, seq),
		Fields: merge(Fields{
			"match":   match,
			"seq":     fmt.Sprint(seq),
			"team":    team,
			"outcome": outcome,
			"xg_shot": fmt.Sprint(xg),
		}, extra),
		Provenance: source.Provenance{Document: match + ".html", Table: "shots_all", Row: seq},
	}
}
