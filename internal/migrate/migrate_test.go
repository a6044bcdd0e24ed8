package migrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/lib/sqliteutil"

	"github.com/stretchr/testify/require"
)

func setupBaseline(t testing.TB) (*sql.DB, Orchestrator, *telemetry.Recorder) {
	database, err := sqliteutil.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(db.Schema)
	require.NoError(t, err)

	tel := &telemetry.Recorder{}
	clock := chrono.FixedTime{At: time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)}
	return database, NewOrchestrator(tel, clock, database), tel
}

func mustExec(t testing.TB, database *sql.DB, query string, args ...any) {
	_, err := database.Exec(query, args...)
	require.NoError(t, err, query)
}

func columnExists(t testing.TB, database *sql.DB, table, column string) bool {
	exists, err := db.New(database).ColumnExists(context.Background(), table, column)
	require.NoError(t, err)
	return exists
}

// seedBaseline writes a season, two teams and a match with both team records
// using the baseline column names.
func seedBaseline(t testing.TB, database *sql.DB, matchSeason any) {
	mustExec(t, database, "INSERT INTO season (id, year) VALUES (1, 2024)")
	mustExec(t, database, "INSERT INTO team (id, native_id, season_id, name) VALUES (1, 'aa11', 1, 'Home FC'), (2, 'bb22', 1, 'Away FC')")
	mustExec(
		t, database,
		"INSERT INTO match (id, native_id, date, season_id, home_team_id, away_team_id, home_goals, away_goals) VALUES (1, 'm1', '2024-03-16', ?, 1, 2, 2, 1)",
		matchSeason,
	)
	mustExec(t, database, "INSERT INTO team_match_record (match_id, team_id, is_home, goals) VALUES (1, 1, 1, 2), (1, 2, 0, 1)")
}

func TestApplyAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, _ := setupBaseline(t)
	seedBaseline(t, database, 1)

	applied, err := orchestrator.ApplyAll(ctx, Builtin)
	require.NoError(t, err)
	require.Len(t, applied, len(Builtin))

	applied, err = orchestrator.ApplyAll(ctx, Builtin)
	require.NoError(t, err)
	require.Empty(t, applied)

	status, err := orchestrator.Status(ctx, Builtin)
	require.NoError(t, err)
	for _, s := range status {
		require.False(t, s.Pending, s.Name)
		require.Equal(t, int64(1710590400), s.AppliedAt, s.Name)
	}

	var goalsFor int64
	var matchDate string
	require.NoError(t, database.QueryRow(
		"SELECT goals_for, match_date FROM team_match_record WHERE team_id = 1",
	).Scan(&goalsFor, &matchDate))
	require.Equal(t, int64(2), goalsFor)
	require.Equal(t, "2024-03-16", matchDate)

	var status0001 string
	require.NoError(t, database.QueryRow("SELECT status FROM match WHERE id = 1").Scan(&status0001))
	require.Equal(t, db.MatchComplete, status0001)
}

func TestSeasonBackfillEnforcesNotNull(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, _ := setupBaseline(t)
	seedBaseline(t, database, 1)

	step, ok := StepByName("0002_team_record_season")
	require.True(t, ok)

	applied, err := orchestrator.Apply(ctx, step)
	require.NoError(t, err)
	require.True(t, applied)

	var nulls int64
	require.NoError(t, database.QueryRow(
		"SELECT COUNT(*) FROM team_match_record WHERE season_id IS NULL",
	).Scan(&nulls))
	require.Zero(t, nulls)

	mustExec(t, database, "INSERT INTO match (id, native_id, date, season_id, home_team_id, away_team_id) VALUES (2, 'm2', '2024-03-23', 1, 2, 1)")
	_, err = database.Exec("INSERT INTO team_match_record (match_id, team_id, is_home) VALUES (2, 1, 0)")
	require.Error(t, err)
	require.Equal(t, db.ConstraintNotNull, db.ConstraintOf(err))

	_, err = database.Exec("UPDATE team_match_record SET season_id = NULL WHERE team_id = 1")
	require.Equal(t, db.ConstraintNotNull, db.ConstraintOf(err))

	mustExec(t, database, "INSERT INTO team_match_record (match_id, team_id, is_home, season_id) VALUES (2, 1, 0, 1)")
}

func TestSeasonBackfillAbortsOnOrphan(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, tel := setupBaseline(t)
	// the match was never given a season, its team records cannot be backfilled
	seedBaseline(t, database, nil)

	step, _ := StepByName("0002_team_record_season")
	applied, err := orchestrator.Apply(ctx, step)
	require.False(t, applied)
	require.ErrorIs(t, err, ErrBackfillIncomplete)

	var stepErr StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, "0002_team_record_season", stepErr.Step)
	require.Equal(t, "postcondition", stepErr.Phase)

	require.False(t, columnExists(t, database, "team_match_record", "season_id"))
	migrations, err := db.New(database).ListMigrations(ctx)
	require.NoError(t, err)
	require.Empty(t, migrations)
	require.True(t, tel.Has("broken", report_migrate_apply))

	// rows can still be written without the column
	mustExec(t, database, "UPDATE team_match_record SET goals = 3 WHERE team_id = 1")
}

func TestRollbackRestoresStructure(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, _ := setupBaseline(t)
	seedBaseline(t, database, 1)

	step, _ := StepByName("0002_team_record_season")
	_, err := orchestrator.Apply(ctx, step)
	require.NoError(t, err)

	reverted, err := orchestrator.Rollback(ctx, step)
	require.NoError(t, err)
	require.True(t, reverted)
	require.False(t, columnExists(t, database, "team_match_record", "season_id"))

	exists, err := db.New(database).TriggerExists(ctx, "team_match_record_season_id_not_null_insert")
	require.NoError(t, err)
	require.False(t, exists)

	reverted, err = orchestrator.Rollback(ctx, step)
	require.NoError(t, err)
	require.False(t, reverted)

	applied, err := orchestrator.Apply(ctx, step)
	require.NoError(t, err)
	require.True(t, applied)
}

func TestRenameRollback(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, _ := setupBaseline(t)
	seedBaseline(t, database, 1)

	step, _ := StepByName("0004_team_record_goals_rename")
	applied, err := orchestrator.Apply(ctx, step)
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, columnExists(t, database, "team_match_record", "goals_for"))

	_, err = orchestrator.Rollback(ctx, step)
	require.NoError(t, err)
	require.True(t, columnExists(t, database, "team_match_record", "goals"))
	require.False(t, columnExists(t, database, "team_match_record", "goals_for"))
}

func TestMatchStatusBackfill(t *testing.T) {
	ctx := context.Background()
	database, orchestrator, _ := setupBaseline(t)
	seedBaseline(t, database, 1)
	mustExec(t, database, "INSERT INTO match (id, native_id, date, season_id, home_team_id, away_team_id) VALUES (2, 'm2', '2024-03-23', 1, 2, 1)")

	step, _ := StepByName("0001_match_status")
	_, err := orchestrator.Apply(ctx, step)
	require.NoError(t, err)

	rows, err := database.Query("SELECT native_id, status FROM match ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]string{}
	for rows.Next() {
		var native, status string
		require.NoError(t, rows.Scan(&native, &status))
		got[native] = status
	}
	require.Equal(t, map[string]string{"m1": db.MatchComplete, "m2": db.MatchPending}, got)

	_, err = database.Exec("UPDATE match SET status = 'abandoned' WHERE id = 2")
	require.Equal(t, db.ConstraintCheck, db.ConstraintOf(err))
}

func TestMigrateFromScratch(t *testing.T) {
	database, err := sqliteutil.OpenDB(":memory:")
	require.NoError(t, err)
	defer database.Close()

	tel := &telemetry.Recorder{}
	require.NoError(t, Migrate(context.Background(), tel, database))
	// running it a second time is a no-op
	require.NoError(t, Migrate(context.Background(), tel, database))

	for _, col := range [][2]string{
		{"match", "status"},
		{"team_match_record", "season_id"},
		{"team_match_record", "goals_for"},
		{"team_match_record", "match_date"},
		{"player_match_record", "match_date"},
	} {
		require.True(t, columnExists(t, database, col[0], col[1]), col)
	}
}
