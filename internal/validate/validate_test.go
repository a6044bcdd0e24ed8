package validate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/ingest"
	"nwsl-backend/internal/source"
	"nwsl-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.October, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db  *sql.DB
	qry *db.Queries
	tel *telemetry.Recorder
}

func setup(t testing.TB, records ...source.Record) fixture {
	res := testutil.SetupStore(t, testutil.StoreParams{})
	engine := ingest.NewEngine(res.Tel, identity.NewResolver(res.Tel, res.DB), res.DB, ingest.Options{})
	for _, rec := range records {
		require.NoError(t, engine.Ingest(context.Background(), rec), rec.Key())
	}
	return fixture{db: res.DB, qry: db.New(res.DB), tel: res.Tel}
}

func (f fixture) validator(opts Options) *Validator {
	return NewValidator(f.tel, f.db, chrono.FixedTime{At: testNow}, opts)
}

func (f fixture) exec(t testing.TB, query string, args ...any) {
	_, err := f.db.Exec(query, args...)
	require.NoError(t, err)
}

// reportedMatch is m1, a 2-1 win of aa over bb where every shot has an
// expected goals value but no team record or match carries one.
func reportedMatch() []source.Record {
	return []source.Record{
		testutil.MatchRecord("m1", "2024-03-16", "aa", "bb", 2, 1),
		testutil.TeamRecord("m1", "aa", 2),
		testutil.TeamRecord("m1", "bb", 1),
		testutil.PlayerRecord("m1", "aa", "p1", 90, testutil.Fields{
			"goals":                    "2",
			"passing.passes_completed": "30",
			"passing.passes":           "40",
		}),
		testutil.PlayerRecord("m1", "bb", "p2", 90, testutil.Fields{"goals": "1"}),
		testutil.ShotRecord("m1", 1, "aa", "Goal", 0.3, testutil.Fields{"player": "p1"}),
		testutil.ShotRecord("m1", 2, "aa", "Goal", 0.5, testutil.Fields{"player": "p1"}),
		testutil.ShotRecord("m1", 3, "aa", "Saved", 0.2),
		testutil.ShotRecord("m1", 4, "bb", "Goal", 0.4, testutil.Fields{"player": "p2"}),
	}
}

func (f fixture) teamRecords(t testing.TB, native string) (home, away db.TeamMatchRecord) {
	ctx := context.Background()
	match, err := f.qry.GetMatch(ctx, native)
	require.NoError(t, err)
	records, err := f.qry.ListTeamRecordsForMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	return records[0], records[1]
}

func TestXGRepairedFromShots(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()

	report, err := f.validator(Options{}).CheckXGConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 1, report.InconsistentCount)
	require.Equal(t, 0, report.RepairedCount)
	require.Len(t, report.Aggregates, 1)
	require.Equal(t, StateInconsistent, report.Aggregates[0].State)
	require.Len(t, report.Aggregates[0].Violations, 4)
	require.Equal(t, 0.0, report.ConsistencyRate())

	home, away := f.teamRecords(t, "m1")
	require.False(t, home.Xg.Valid, "flagging alone must not write")
	require.False(t, away.Xg.Valid)

	report, err = f.validator(Options{Repair: true}).CheckXGConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.RepairedCount)
	require.Equal(t, 0, report.InconsistentCount)
	require.Equal(t, StateConsistent, report.Aggregates[0].State)
	require.True(t, report.Aggregates[0].Repaired)
	require.True(t, f.tel.Has("warning", report_validate_repair))

	home, away = f.teamRecords(t, "m1")
	require.InDelta(t, 1.0, home.Xg.Float64, 0.001)
	require.InDelta(t, 0.4, away.Xg.Float64, 0.001)
	match, err := f.qry.GetMatch(ctx, "m1")
	require.NoError(t, err)
	require.InDelta(t, 1.0, match.XgHome.Float64, 0.001)
	require.InDelta(t, 0.4, match.XgAway.Float64, 0.001)

	report, err = f.validator(Options{Repair: true}).CheckXGConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ConsistentCount)
	require.Equal(t, 0, report.Issues())
	require.Empty(t, report.Aggregates)
	require.Equal(t, 100.0, report.ConsistencyRate())
}

func TestXGLeavesOutShotsWithoutValue(t *testing.T) {
	records := reportedMatch()
	records = append(records,
		testutil.ShotRecord("m1", 5, "bb", "Blocked", 0, testutil.Fields{"xg_shot": ""}),
		testutil.MatchRecord("m2", "2024-03-23", "aa", "bb", 0, 0),
		testutil.ShotRecord("m2", 1, "aa", "Off Target", 0, testutil.Fields{"xg_shot": ""}),
	)
	f := setup(t, records...)
	ctx := context.Background()
	f.exec(t, "UPDATE team_match_record SET xg = 5.0 WHERE is_home = 1")
	f.exec(t, "UPDATE match SET xg_home = 5.0 WHERE native_id = 'm1'")

	report, err := f.validator(Options{Repair: true}).CheckXGConsistency(ctx)
	require.NoError(t, err)
	// m2 has no shot with a value
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 1, report.SkippedCount)
	require.Equal(t, 1, report.RepairedCount)

	home, away := f.teamRecords(t, "m1")
	require.InDelta(t, 1.0, home.Xg.Float64, 0.001)
	require.InDelta(t, 0.4, away.Xg.Float64, 0.001)
	match, err := f.qry.GetMatch(ctx, "m1")
	require.NoError(t, err)
	require.InDelta(t, 1.0, match.XgHome.Float64, 0.001)
	require.InDelta(t, 0.4, match.XgAway.Float64, 0.001)
}

func TestGoalRepairedFromScore(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()
	f.exec(t, "UPDATE team_match_record SET goals_for = 5, result = 'D' WHERE is_home = 1")

	report, err := f.validator(Options{}).CheckGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.InconsistentCount)
	fields := []string{}
	for _, violation := range report.Aggregates[0].Violations {
		fields = append(fields, violation.Field)
	}
	require.ElementsMatch(t, []string{
		"team_match_record[home].goals_for",
		"team_match_record[home].result",
	}, fields)

	report, err = f.validator(Options{Repair: true}).CheckGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.RepairedCount)

	home, away := f.teamRecords(t, "m1")
	require.Equal(t, int64(2), home.GoalsFor.Int64)
	require.Equal(t, db.ResultWin, home.Result.String)
	require.Equal(t, int64(1), away.GoalsFor.Int64)
	require.Equal(t, int64(2), away.GoalsAgainst.Int64)
}

func TestRecordCompleteness(t *testing.T) {
	records := reportedMatch()
	records = append(
		records,
		testutil.MatchRecord("m2", "2024-04-01", "aa", "cc", 3, 0, testutil.Fields{"status": db.MatchForfeit}),
		testutil.TeamRecord("m2", "aa", 3),
		testutil.MatchRecord("m3", "2024-04-08", "bb", "cc", 0, 0),
		testutil.TeamRecord("m3", "cc", 0),
	)
	f := setup(t, records...)

	report, err := f.validator(Options{Repair: true}).CheckRecordCompleteness(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalChecked)
	require.Equal(t, 1, report.SkippedCount)
	require.Equal(t, 1, report.InconsistentCount)
	require.Equal(t, 0, report.RepairedCount)
	require.Equal(t, "match:m3", report.Aggregates[0].Key)
	require.Equal(t, Violation{
		Aggregate: "match:m3",
		Field:     "team_match_record.count",
		Expected:  2,
		Actual:    int64(1),
	}, report.Aggregates[0].Violations[0])
}

func TestShotGoalConsistency(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()

	report, err := f.validator(Options{}).CheckShotGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 0, report.Issues())

	f.exec(t, "UPDATE shot_event SET outcome = ? WHERE outcome = ?", db.OutcomeSaved, db.OutcomeGoal)
	report, err = f.validator(Options{}).CheckShotGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.InconsistentCount)
	require.Len(t, report.Aggregates[0].Violations, 2)

	// matches before shots were tracked are not checked
	report, err = f.validator(Options{ShotEra: "2025-01-01"}).CheckShotGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.TotalChecked)
}

func TestOwnGoalsCountForTheOpponent(t *testing.T) {
	f := setup(t,
		testutil.MatchRecord("m1", "2024-03-16", "aa", "bb", 1, 0),
		testutil.TeamRecord("m1", "aa", 1),
		testutil.TeamRecord("m1", "bb", 0),
		testutil.PlayerRecord("m1", "aa", "p1", 90),
		testutil.PlayerRecord("m1", "bb", "p2", 90, testutil.Fields{"misc.own_goals": "1"}),
		testutil.ShotRecord("m1", 1, "bb", "Off Target", 0.1),
	)
	ctx := context.Background()

	report, err := f.validator(Options{}).CheckPlayerGoalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 0, report.Issues())

	report, err = f.validator(Options{}).CheckShotGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Issues())
}

func TestForfeitsHaveNoGoalTallies(t *testing.T) {
	records := reportedMatch()
	records = append(
		records,
		testutil.MatchRecord("m2", "2024-04-01", "aa", "cc", 3, 0, testutil.Fields{"status": db.MatchForfeit}),
		testutil.TeamRecord("m2", "aa", 3),
		testutil.TeamRecord("m2", "cc", 0),
		testutil.PlayerRecord("m2", "aa", "p3", 90),
		testutil.ShotRecord("m2", 1, "aa", "Saved", 0.1),
	)
	f := setup(t, records...)
	ctx := context.Background()

	report, err := f.validator(Options{}).CheckPlayerGoalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 0, report.Issues())

	report, err = f.validator(Options{}).CheckShotGoalConsistency(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalChecked)
	require.Equal(t, 0, report.Issues())

	// the same match played out is held to its tallies
	f.exec(t, "UPDATE match SET status = ? WHERE native_id = 'm2'", db.MatchComplete)
	report, err = f.validator(Options{}).CheckPlayerGoalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalChecked)
	require.Equal(t, 1, report.InconsistentCount)
}

func TestPlayerGoalTotalsTolerance(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()
	f.exec(t, "UPDATE player_match_record SET goals = 1 WHERE goals = 2")

	report, err := f.validator(Options{}).CheckPlayerGoalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.InconsistentCount)
	violation := report.Aggregates[0].Violations[0]
	require.Equal(t, int64(2), violation.Expected)
	require.Equal(t, int64(1), violation.Actual)

	report, err = f.validator(Options{GoalTolerance: 1}).CheckPlayerGoalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Issues())
}

func TestDetailPercentageRepair(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()
	f.exec(t, "UPDATE player_passing SET pass_pct = 50")

	report, err := f.validator(Options{}).CheckDetailPercentages(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.InconsistentCount)
	require.Equal(t, Violation{
		Aggregate: report.Aggregates[0].Key,
		Field:     "pass_pct",
		Expected:  75.0,
		Actual:    50.0,
	}, report.Aggregates[0].Violations[0])

	report, err = f.validator(Options{Repair: true}).CheckDetailPercentages(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.RepairedCount)

	var pct float64
	require.NoError(t, f.db.QueryRow("SELECT pass_pct FROM player_passing").Scan(&pct))
	require.Equal(t, 75.0, pct)
}

func TestDenormalizedFieldsRepair(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()

	report, err := f.validator(Options{}).CheckDenormalizedFields(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalChecked)
	require.Equal(t, 0, report.Issues())

	f.exec(t, "UPDATE player_match_record SET match_date = '2000-01-01'")
	f.exec(t, "UPDATE team_match_record SET match_date = NULL WHERE is_home = 0")

	report, err = f.validator(Options{Repair: true}).CheckDenormalizedFields(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.TotalChecked)
	require.Equal(t, 3, report.RepairedCount)
	require.Equal(t, 25.0, report.ConsistencyRate())

	match, err := f.qry.GetMatch(ctx, "m1")
	require.NoError(t, err)
	players, err := f.qry.ListPlayerRecordsForMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	for _, player := range players {
		require.Equal(t, "2024-03-16", player.MatchDate)
	}
	_, away := f.teamRecords(t, "m1")
	require.Equal(t, "2024-03-16", away.MatchDate)
}

func TestSampleLimit(t *testing.T) {
	f := setup(t, reportedMatch()...)

	report, err := f.validator(Options{SampleLimit: 2}).CheckXGConsistency(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Aggregates[0].Violations, 4)
	require.Len(t, report.SampleViolations, 2)
}

func TestFailedRollbackIsReported(t *testing.T) {
	f := setup(t, reportedMatch()...)
	v := f.validator(Options{Repair: true})

	report, err := v.CheckXGConsistency(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.RepairedCount)
	require.False(t, f.tel.Has("broken", report_validate_tx))

	v.discard("match:m1", func() error { return errors.New("connection reset") })
	require.True(t, f.tel.Has("broken", report_validate_tx))
}
