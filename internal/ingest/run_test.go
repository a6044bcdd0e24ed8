package ingest

import (
	"context"
	"testing"

	"nwsl-backend/internal/source"
	"nwsl-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestRunSkipsFailedRecords(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	feed := source.NewSliceFeed(
		testutil.MatchRecord("m1", "2024-03-16", "aa", "bb", 1, 0),
		testutil.TeamRecord("m404", "aa", 1),
		testutil.ShotRecord("m1", 1, "aa", "banana", 0.2),
		source.Record{Kind: "lineup", NativeID: "m1/lineup"},
		testutil.TeamRecord("m1", "aa", 1),
		testutil.MatchRecord("m1", "2024-04-01", "aa", "bb", 1, 0),
	)
	summary, err := f.engine.Run(ctx, feed)
	require.NoError(t, err)
	require.Equal(t, 6, summary.Processed)
	require.Equal(t, 2, summary.Ingested)
	require.Equal(t, 4, summary.SkippedTotal())
	require.Equal(t, map[string]int{
		"unresolvable_reference": 1,
		"invalid_field":          1,
		"unknown_kind":           1,
		"context_mismatch":       1,
	}, summary.Skipped)

	warnings := f.tel.Reports("warning")
	var keys []any
	for _, w := range warnings {
		if len(w.Params) > 0 {
			keys = append(keys, w.Params[0])
		}
	}
	require.Contains(t, keys, "team_record:m404/aa")
}

func TestRunIsSafeToRepeat(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first, err := f.engine.Run(ctx, source.NewSliceFeed(fullMatch()...))
	require.NoError(t, err)
	require.Equal(t, len(fullMatch()), first.Ingested)

	second, err := f.engine.Run(ctx, source.NewSliceFeed(fullMatch()...))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.engine.Run(ctx, source.NewSliceFeed(fullMatch()...))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, summary.Processed)
}
