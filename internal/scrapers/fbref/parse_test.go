package fbref

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nwsl-backend/internal/source"

	"github.com/stretchr/testify/require"
)

const fixture = "testdata/a1b2c3d4_Portland-Thorns-FC-Kansas-City-Current.html"

func parseFixture(t testing.TB) []source.Record {
	file, err := os.Open(fixture)
	require.NoError(t, err)
	defer file.Close()

	records, err := Parse(context.Background(), "a1b2c3d4", filepath.Base(fixture), file)
	require.NoError(t, err)
	return records
}

func byKind(records []source.Record, kind source.Kind) []source.Record {
	var out []source.Record
	for _, rec := range records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func TestMatchID(t *testing.T) {
	require.Equal(t, "a1b2c3d4", MatchID("https://fbref.com/en/matches/a1b2c3d4/Portland-Thorns-FC-Kansas-City-Current"))
	require.Equal(t, "a1b2c3d4", MatchID("a1b2c3d4_Portland-Thorns-FC.html"))
	require.Equal(t, "a1b2c3d4", MatchID("/tmp/reports/a1b2c3d4.html"))
	require.Equal(t, "opening-day", MatchID("opening-day.html"))
}

func TestParseOrder(t *testing.T) {
	records := parseFixture(t)

	kinds := []source.Kind{}
	for _, rec := range records {
		if len(kinds) == 0 || kinds[len(kinds)-1] != rec.Kind {
			kinds = append(kinds, rec.Kind)
		}
	}
	require.Equal(t, []source.Kind{source.KindMatch, source.KindTeam, source.KindPlayer, source.KindShot}, kinds)
	require.Len(t, byKind(records, source.KindTeam), 2)
	require.Len(t, byKind(records, source.KindPlayer), 5)
	require.Len(t, byKind(records, source.KindShot), 4)
}

func TestParseMatch(t *testing.T) {
	match := parseFixture(t)[0]

	require.Equal(t, "a1b2c3d4", match.NativeID)
	require.Equal(t, map[string]any{
		"date":           "2024-03-16",
		"home_team":      "aaaa1111",
		"home_team_name": "Portland Thorns FC",
		"away_team":      "bbbb2222",
		"away_team_name": "Kansas City Current",
		"home_goals":     "2",
		"away_goals":     "1",
		"home_xg":        "1.0",
		"away_xg":        "0.4",
		"competition":    "NWSL",
		"venue":          "Providence Park",
		"venue_address":  "Portland, Oregon",
	}, match.Fields)
}

func TestParseTeamRecords(t *testing.T) {
	teams := byKind(parseFixture(t), source.KindTeam)

	home := teams[0]
	require.Equal(t, "a1b2c3d4/aaaa1111", home.NativeID)
	require.Equal(t, map[string]any{
		"match":            "a1b2c3d4",
		"team":             "aaaa1111",
		"team_name":        "Portland Thorns FC",
		"goals":            "2",
		"possession":       "58%",
		"shots":            "4",
		"shots_on_target":  "3",
		"cards_yellow":     "1",
		"cards_red":        "0",
		"xg":               "1.0",
		"passes_completed": "43",
		"passes":           "65",
		"fouls":            "3",
		"offsides":         "1",
		"aerials_won":      "1",
		"saves":            "1",
	}, home.Fields)

	away := teams[1]
	require.Equal(t, "42%", away.Fields["possession"])
	require.Equal(t, "1", away.Fields["saves"])
	require.NotContains(t, away.Fields, "passes")
}

func TestParsePlayerRecords(t *testing.T) {
	players := byKind(parseFixture(t), source.KindPlayer)

	smith := players[0]
	require.Equal(t, "a1b2c3d4/11111111", smith.NativeID)
	require.Equal(t, "aaaa1111", smith.Fields["team"])
	require.Equal(t, "Sophia Smith", smith.Fields["player_name"])
	require.Equal(t, 1, smith.Fields["row"])
	require.Equal(t, true, smith.Fields["started"])
	require.Equal(t, "2", smith.Fields["goals"])
	require.Equal(t, "20", smith.Fields["passing.passes_completed"])
	require.Equal(t, "0", smith.Fields["misc.own_goals"])
	require.NotContains(t, smith.Fields, "keeper.gk_saves")

	bixby := players[1]
	require.Equal(t, "1", bixby.Fields["keeper.gk_saves"])
	require.Equal(t, "GK", bixby.Fields["position"])

	moultrie := players[2]
	require.Equal(t, "Olivia Moultrie", moultrie.Fields["player_name"])
	require.Equal(t, 3, moultrie.Fields["row"])
	require.Equal(t, false, moultrie.Fields["started"])
	require.Equal(t, 3, moultrie.Provenance.Row)

	require.Equal(t, "bbbb2222", players[3].Fields["team"])
	require.Equal(t, "stats_bbbb2222_summary", players[3].Provenance.Table)
}

func TestParseShots(t *testing.T) {
	shots := byKind(parseFixture(t), source.KindShot)

	first := shots[0]
	require.Equal(t, "a1b2c3d4/1", first.NativeID)
	require.Equal(t, "12", first.Fields["minute"])
	require.Equal(t, "11111111", first.Fields["player"])
	require.Equal(t, "aaaa1111", first.Fields["team"])
	require.Equal(t, "0.30", first.Fields["xg_shot"])
	require.Equal(t, "Olivia Moultrie", first.Fields["sca_1_player"])

	// the spacer row does not take a sequence number
	require.Equal(t, "a1b2c3d4/3", shots[2].NativeID)
	require.Equal(t, "Saved", shots[2].Fields["outcome"])

	// a squad without a link is matched by name
	last := shots[3]
	require.Equal(t, "bbbb2222", last.Fields["team"])
	require.Equal(t, "90+3", last.Fields["minute"])
	require.Equal(t, "Volley", last.Fields["notes"])
}

func TestParseRejectsReportWithoutScorebox(t *testing.T) {
	_, err := Parse(context.Background(), "a1b2c3d4", "empty.html", strings.NewReader("<html><body></body></html>"))
	require.ErrorIs(t, err, ErrMalformedReport)

	_, err = Parse(context.Background(), "a1b2c3d4", "nodate.html", strings.NewReader(`<div class="scorebox">
<div><strong><a href="/en/squads/aaaa1111/A">A</a></strong></div>
<div><strong><a href="/en/squads/bbbb2222/B">B</a></strong></div>
</div>`))
	require.ErrorIs(t, err, ErrMalformedReport)
}
