package ingest

import (
	"context"
	"testing"

	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/source"
	"nwsl-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestParseMinute(t *testing.T) {
	cases := []struct {
		raw      string
		expected int64
		err      bool
	}{
		{raw: "90+7", expected: 97},
		{raw: "45+2", expected: 47},
		{raw: "67", expected: 67},
		{raw: " 12' ", expected: 12},
		{raw: "90 + 3", expected: 93},
		{raw: "", err: true},
		{raw: "abc", err: true},
		{raw: "90+", err: true},
		{raw: "-5", err: true},
	}
	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			minute, err := ParseMinute(c.raw)
			if c.err {
				require.ErrorIs(t, err, source.ErrInvalidField)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.expected, minute)
		})
	}
}

func TestNormalizeOutcome(t *testing.T) {
	cases := map[string]string{
		"Goal":             db.OutcomeGoal,
		"so_saved":         db.OutcomeSaved,
		"SAVED":            db.OutcomeSaved,
		"off_target":       db.OutcomeOffTarget,
		"Off Target":       db.OutcomeOffTarget,
		"so_blocked":       db.OutcomeBlocked,
		"Woodwork":         db.OutcomeWoodwork,
		"Saved off Target": db.OutcomeSavedOffTarget,
		"so_saved_off":     db.OutcomeSavedOffTarget,
	}
	for raw, expected := range cases {
		outcome, err := NormalizeOutcome(raw)
		require.NoError(t, err, raw)
		require.Equal(t, expected, outcome, raw)
	}

	_, err := NormalizeOutcome("penalty miss")
	require.ErrorIs(t, err, source.ErrInvalidField)
}

func TestShotEvents(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.ingest(t,
		testutil.MatchRecord("m1", "2024-03-16", "aa", "bb", 1, 0),
		testutil.PlayerRecord("m1", "aa", "p1", 90),
	)

	known, err := f.engine.IngestShotEvent(ctx, testutil.ShotRecord("m1", 1, "aa", "Goal", 0.45, testutil.Fields{
		"player":       "p1",
		"minute":       "90+7",
		"sca_1_player": "Player p2",
		"sca_1_type":   "Pass (Live)",
	}))
	require.NoError(t, err)
	require.True(t, known.PlayerID.Valid)
	require.Equal(t, int64(97), known.Minute.Int64)
	require.Equal(t, "Pass (Live)", known.Sca1Event)

	unmapped, err := f.engine.IngestShotEvent(ctx, testutil.ShotRecord("m1", 2, "bb", "so_saved", 0.1, testutil.Fields{
		"player": "zz99",
		"minute": "late",
	}))
	require.NoError(t, err)
	require.False(t, unmapped.PlayerID.Valid)
	require.Equal(t, "zz99", unmapped.PlayerNativeID)
	require.False(t, unmapped.Minute.Valid)
	require.Equal(t, db.OutcomeSaved, unmapped.Outcome)
	require.True(t, f.tel.Has("warning", report_ingest_field))

	_, err = f.engine.IngestShotEvent(ctx, testutil.ShotRecord("m1", 3, "aa", "banana", 0.1))
	require.ErrorIs(t, err, source.ErrInvalidField)

	// a shot keyed on the same seq replaces the stored one
	_, err = f.engine.IngestShotEvent(ctx, testutil.ShotRecord("m1", 1, "aa", "Saved", 0.45, testutil.Fields{"player": "p1"}))
	require.NoError(t, err)
	match := f.match(t, "m1")
	shots, err := f.qry.ListShotsForMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, shots, 2)
	require.Equal(t, db.OutcomeSaved, shots[0].Outcome)
}
