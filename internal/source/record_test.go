package source

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumericAccessors(t *testing.T) {
	rec := Record{
		Kind:     KindPlayer,
		NativeID: "m1/p1",
		Fields: map[string]any{
			"minutes":      json.Number("90"),
			"distance":     "1,234",
			"possession":   "61%",
			"xg":           0.4,
			"goals":        2,
			"empty":        "  ",
			"nil":          nil,
			"fraction":     "1.5",
			"garbage":      "n/a",
			"started":      "true",
			"started_int":  json.Number("0"),
			"passing.att":  json.Number("30"),
			"passing.cmp":  "25",
			"defense.tkl":  3,
			"passingextra": 1,
		},
	}

	cases := []struct {
		key   string
		value int64
		ok    bool
		err   bool
	}{
		{key: "minutes", value: 90, ok: true},
		{key: "distance", value: 1234, ok: true},
		{key: "possession", value: 61, ok: true},
		{key: "goals", value: 2, ok: true},
		{key: "empty"},
		{key: "nil"},
		{key: "absent"},
		{key: "fraction", err: true},
		{key: "garbage", err: true},
	}
	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			v, ok, err := rec.Int(c.key)
			if c.err {
				require.ErrorIs(t, err, ErrInvalidField)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.value, v)
		})
	}

	xg, ok, err := rec.Float("xg")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 0.4, xg, 1e-9)

	started, ok, err := rec.Bool("started")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, started)

	started, ok, err = rec.Bool("started_int")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, started)

	_, err = rec.RequireInt("absent")
	require.ErrorIs(t, err, ErrInvalidField)

	passing, ok := rec.Sub("passing")
	require.True(t, ok)
	require.Len(t, passing.Fields, 2)
	cmp, _, err := passing.Int("cmp")
	require.NoError(t, err)
	require.Equal(t, int64(25), cmp)

	_, ok = rec.Sub("keeper")
	require.False(t, ok)
}

func TestStringAccessor(t *testing.T) {
	rec := Record{Fields: map[string]any{
		"name":   "  Sophia Smith ",
		"season": json.Number("2024"),
		"blank":  "",
	}}

	name, ok := rec.String("name")
	require.True(t, ok)
	require.Equal(t, "Sophia Smith", name)

	season, ok := rec.String("season")
	require.True(t, ok)
	require.Equal(t, "2024", season)

	_, ok = rec.String("blank")
	require.False(t, ok)
	_, err := rec.RequireString("blank")
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestJSONLinesRoundTrip(t *testing.T) {
	ctx := context.Background()
	input := strings.Join([]string{
		`{"kind": "match", "native_id": "m1", "fields": {"date": "2024-03-16", "home_goals": 2}}`,
		`{"kind": "shot", "native_id": "m1/0", "fields": {"minute": "90+7", "xg_shot": 0.05}, "provenance": {"document": "m1.html", "table": "shots_all", "row": 1}}`,
	}, "\n")

	feed := NewJSONLinesFeed(strings.NewReader(input))
	first, err := feed.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, KindMatch, first.Kind)
	goals, ok, err := first.Int("home_goals")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), goals)

	second, err := feed.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, Provenance{Document: "m1.html", Table: "shots_all", Row: 1}, second.Provenance)

	_, err = feed.Next(ctx)
	require.Equal(t, io.EOF, err)

	var out strings.Builder
	n, err := WriteJSONLines(ctx, &out, NewSliceFeed(first, second))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	again := NewJSONLinesFeed(strings.NewReader(out.String()))
	rec, err := again.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Key(), rec.Key())
}

func TestJSONLinesRejectsAnonymousRecord(t *testing.T) {
	feed := NewJSONLinesFeed(strings.NewReader(`{"kind": "match", "fields": {}}`))
	_, err := feed.Next(context.Background())
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestSliceFeedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSliceFeed(Record{Kind: KindMatch, NativeID: "m1"}).Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
