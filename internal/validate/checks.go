package validate

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"nwsl-backend/internal/components/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func matchKey(nativeID string) string {
	return "match:" + nativeID
}

func side(isHome bool) string {
	if isHome {
		return "home"
	}
	return "away"
}

func (v *Validator) failed(span trace.Span, err error, query string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "check failed")
	v.tel.ReportBroken(report_db_query, err, query)
	return err
}

func (v *Validator) finish(ctx context.Context, span trace.Span, b *builder) Report {
	check := metric.WithAttributes(attribute.String("check", b.report.CheckName))
	inconsistentCounter.Add(ctx, int64(b.report.Issues()), check)
	repairedCounter.Add(ctx, int64(b.report.RepairedCount), check)
	span.SetAttributes(
		attribute.Int("checked", b.report.TotalChecked),
		attribute.Int("inconsistent", b.report.InconsistentCount),
		attribute.Int("repaired", b.report.RepairedCount),
	)
	v.tel.ReportDebug(
		"check done", b.report.CheckName,
		b.report.TotalChecked, b.report.InconsistentCount, b.report.RepairedCount,
	)
	return b.report
}

// CheckXGConsistency compares the expected goals of every match that has a
// shot with an expected goals value against the sum of those shots, for
// both the match and its team records. Shots without a value are left out
// of the sums. The shots are the ground truth of a repair.
func (v *Validator) CheckXGConsistency(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckXGConsistency")
	defer span.End()

	rows, err := v.qry.ListMatchXG(ctx)
	if err != nil {
		return Report{}, v.failed(span, err, "ListMatchXG")
	}

	b := v.newBuilder(CheckXG)
	for _, row := range rows {
		if row.XgShots == 0 {
			b.skip()
			continue
		}
		key := matchKey(row.NativeID)
		home := round2(row.ShotXgHome.Float64)
		away := round2(row.ShotXgAway.Float64)

		var violations []Violation
		compare := func(field string, stored sql.NullFloat64, expected float64) {
			if stored.Valid && math.Abs(stored.Float64-expected) <= v.opts.XGTolerance {
				return
			}
			violations = append(violations, Violation{
				Aggregate: key,
				Field:     field,
				Expected:  expected,
				Actual:    nullable(stored.Float64, stored.Valid),
			})
		}
		compare("match.xg_home", row.XgHome, home)
		compare("match.xg_away", row.XgAway, away)
		if row.HomeHasRecord {
			compare("team_match_record[home].xg", row.RecordXgHome, home)
		}
		if row.AwayHasRecord {
			compare("team_match_record[away].xg", row.RecordXgAway, away)
		}

		repaired := false
		if len(violations) > 0 && v.opts.Repair {
			repaired = v.repair(ctx, CheckXG, key, violations, func(tx *db.Queries) error {
				homeXG := sql.NullFloat64{Float64: home, Valid: true}
				awayXG := sql.NullFloat64{Float64: away, Valid: true}
				err := tx.SetMatchXG(ctx, row.MatchID, homeXG, awayXG)
				if err != nil {
					return err
				}
				_, err = tx.SetTeamRecordXG(ctx, row.MatchID, row.HomeTeamID, homeXG)
				if err != nil {
					return err
				}
				_, err = tx.SetTeamRecordXG(ctx, row.MatchID, row.AwayTeamID, awayXG)
				return err
			})
		}
		b.record(key, violations, repaired)
	}

	return v.finish(ctx, span, b), nil
}

// CheckGoalConsistency compares the goals and result of every team record
// with the score of its match. The match score is the ground truth of a
// repair. Matches without a score are skipped.
func (v *Validator) CheckGoalConsistency(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckGoalConsistency")
	defer span.End()

	rows, err := v.qry.ListTeamGoals(ctx)
	if err != nil {
		return Report{}, v.failed(span, err, "ListTeamGoals")
	}

	b := v.newBuilder(CheckGoals)
	for _, group := range groupBy(rows, func(r db.TeamGoalRow) int64 { return r.MatchID }) {
		first := group[0]
		if !first.HomeGoals.Valid || !first.AwayGoals.Valid {
			b.skip()
			continue
		}
		key := matchKey(first.NativeID)

		var violations []Violation
		var fixes []db.SetTeamRecordGoalsParams
		for _, row := range group {
			goalsFor, goalsAgainst := first.HomeGoals.Int64, first.AwayGoals.Int64
			if !row.IsHome {
				goalsFor, goalsAgainst = goalsAgainst, goalsFor
			}
			result := db.ResultOf(goalsFor, goalsAgainst)
			prefix := fmt.Sprintf("team_match_record[%s].", side(row.IsHome))

			before := len(violations)
			if !row.GoalsFor.Valid || row.GoalsFor.Int64 != goalsFor {
				violations = append(violations, Violation{
					Aggregate: key, Field: prefix + "goals_for",
					Expected: goalsFor, Actual: nullable(row.GoalsFor.Int64, row.GoalsFor.Valid),
				})
			}
			if !row.GoalsAgainst.Valid || row.GoalsAgainst.Int64 != goalsAgainst {
				violations = append(violations, Violation{
					Aggregate: key, Field: prefix + "goals_against",
					Expected: goalsAgainst, Actual: nullable(row.GoalsAgainst.Int64, row.GoalsAgainst.Valid),
				})
			}
			if !row.Result.Valid || row.Result.String != result {
				violations = append(violations, Violation{
					Aggregate: key, Field: prefix + "result",
					Expected: result, Actual: nullable(row.Result.String, row.Result.Valid),
				})
			}
			if len(violations) > before {
				fixes = append(fixes, db.SetTeamRecordGoalsParams{
					ID:           row.TeamRecordID,
					GoalsFor:     sql.NullInt64{Int64: goalsFor, Valid: true},
					GoalsAgainst: sql.NullInt64{Int64: goalsAgainst, Valid: true},
					Result:       sql.NullString{String: result, Valid: true},
				})
			}
		}

		repaired := false
		if len(violations) > 0 && v.opts.Repair {
			repaired = v.repair(ctx, CheckGoals, key, violations, func(tx *db.Queries) error {
				for _, fix := range fixes {
					err := tx.SetTeamRecordGoals(ctx, fix)
					if err != nil {
						return err
					}
				}
				return nil
			})
		}
		b.record(key, violations, repaired)
	}

	return v.finish(ctx, span, b), nil
}

// CheckRecordCompleteness verifies every match has exactly two team records.
// Missing statistics cannot be synthesized so nothing is repaired, forfeited
// matches are exempt.
func (v *Validator) CheckRecordCompleteness(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckRecordCompleteness")
	defer span.End()

	rows, err := v.qry.ListRecordCounts(ctx)
	if err != nil {
		return Report{}, v.failed(span, err, "ListRecordCounts")
	}

	b := v.newBuilder(CheckCompleteness)
	for _, row := range rows {
		if row.Status == db.MatchForfeit {
			b.skip()
			continue
		}
		key := matchKey(row.NativeID)
		var violations []Violation
		if row.Records != 2 {
			violations = append(violations, Violation{
				Aggregate: key, Field: "team_match_record.count",
				Expected: 2, Actual: row.Records,
			})
		}
		b.record(key, violations, false)
	}

	return v.finish(ctx, span, b), nil
}

func (v *Validator) checkTallies(
	ctx context.Context,
	span trace.Span,
	check string,
	rows []db.TeamTallyRow,
	field string,
	tolerance int64,
) Report {
	b := v.newBuilder(check)
	for _, group := range groupBy(rows, func(r db.TeamTallyRow) int64 { return r.MatchID }) {
		key := matchKey(group[0].NativeID)
		var violations []Violation
		checked := false
		for _, row := range group {
			if row.Rows == 0 || !row.GoalsFor.Valid {
				continue
			}
			checked = true
			tally := row.Tally + row.OpponentOwnGoals
			diff := row.GoalsFor.Int64 - tally
			if diff < 0 {
				diff = -diff
			}
			if diff > tolerance {
				violations = append(violations, Violation{
					Aggregate: key,
					Field:     fmt.Sprintf("%s[team %d]", field, row.TeamID),
					Expected:  row.GoalsFor.Int64,
					Actual:    tally,
				})
			}
		}
		if !checked {
			b.skip()
			continue
		}
		b.record(key, violations, false)
	}
	return v.finish(ctx, span, b)
}

// CheckShotGoalConsistency verifies the goals of every team record of a
// match with tracked shots equal its goal shots plus the own goals of the
// opponent. Only matches in the shot tracking era are checked, forfeits never
// are.
func (v *Validator) CheckShotGoalConsistency(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckShotGoalConsistency")
	defer span.End()

	rows, err := v.qry.ListShotTallies(ctx, v.opts.ShotEra)
	if err != nil {
		return Report{}, v.failed(span, err, "ListShotTallies")
	}
	return v.checkTallies(ctx, span, CheckShotGoals, rows, "shot_goals", 0), nil
}

// CheckPlayerGoalTotals verifies the goals of every team record equal the
// goals of its players plus the own goals of the opponent, within the
// configured tolerance. Forfeits are not checked.
func (v *Validator) CheckPlayerGoalTotals(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckPlayerGoalTotals")
	defer span.End()

	rows, err := v.qry.ListPlayerTallies(ctx, v.opts.PlayerEra)
	if err != nil {
		return Report{}, v.failed(span, err, "ListPlayerTallies")
	}
	return v.checkTallies(ctx, span, CheckPlayerGoals, rows, "player_goals", v.opts.GoalTolerance), nil
}

// CheckDetailPercentages recomputes every percentage column of the detail
// rows from its components and repairs the ones that drifted.
func (v *Validator) CheckDetailPercentages(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckDetailPercentages")
	defer span.End()

	b := v.newBuilder(CheckDetailPercentage)
	for _, cat := range db.Categories {
		if len(cat.Ratios) == 0 {
			continue
		}
		rows, err := v.qry.ListDetails(ctx, cat)
		if err != nil {
			return Report{}, v.failed(span, err, "ListDetails "+cat.Table)
		}

		for _, row := range rows {
			key := fmt.Sprintf("%s:%d", cat.Table, row.PlayerRecordID)
			var violations []Violation
			fixes := map[string]any{}
			for _, ratio := range cat.Ratios {
				expected := ratio.Of(row.Values)
				stored := row.Values[ratio.Column]
				if expected.Valid == stored.Valid &&
					(!expected.Valid || math.Abs(expected.Float64-stored.Float64) < 0.05) {
					continue
				}
				violations = append(violations, Violation{
					Aggregate: key,
					Field:     ratio.Column,
					Expected:  nullable(expected.Float64, expected.Valid),
					Actual:    nullable(stored.Float64, stored.Valid),
				})
				fixes[ratio.Column] = expected
			}

			repaired := false
			if len(violations) > 0 && v.opts.Repair {
				repaired = v.repair(ctx, CheckDetailPercentage, key, violations, func(tx *db.Queries) error {
					return tx.UpdateDetailColumns(ctx, cat, row.PlayerRecordID, fixes)
				})
			}
			b.record(key, violations, repaired)
		}
	}

	return v.finish(ctx, span, b), nil
}

// CheckDenormalizedFields compares the season and date copied onto team and
// player records with their match, the match is the ground truth of a
// repair.
func (v *Validator) CheckDenormalizedFields(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "CheckDenormalizedFields")
	defer span.End()

	total, err := v.qry.CountDenormalized(ctx)
	if err != nil {
		return Report{}, v.failed(span, err, "CountDenormalized")
	}
	rows, err := v.qry.ListDenormalizedDrift(ctx)
	if err != nil {
		return Report{}, v.failed(span, err, "ListDenormalizedDrift")
	}

	b := v.newBuilder(CheckDenormalized)
	clean := int(total) - len(rows)
	b.report.TotalChecked += clean
	b.report.ConsistentCount += clean

	for _, row := range rows {
		key := fmt.Sprintf("%s:%d", row.Table, row.RecordID)
		var violations []Violation
		if row.Table == "team_match_record" && row.SeasonID != row.MatchSeasonID {
			violations = append(violations, Violation{
				Aggregate: key, Field: "season_id",
				Expected: nullable(row.MatchSeasonID.Int64, row.MatchSeasonID.Valid),
				Actual:   nullable(row.SeasonID.Int64, row.SeasonID.Valid),
			})
		}
		if !row.MatchDate.Valid || row.MatchDate.String != row.Date {
			violations = append(violations, Violation{
				Aggregate: key, Field: "match_date",
				Expected: row.Date,
				Actual:   nullable(row.MatchDate.String, row.MatchDate.Valid),
			})
		}

		// a team record cannot be repaired from a match without a season
		canRepair := row.Table == "player_match_record" || row.MatchSeasonID.Valid
		repaired := false
		if len(violations) > 0 && v.opts.Repair && canRepair {
			repaired = v.repair(ctx, CheckDenormalized, key, violations, func(tx *db.Queries) error {
				if row.Table == "team_match_record" {
					return tx.SetTeamRecordDenormalized(ctx, row.RecordID, row.MatchSeasonID.Int64, row.Date)
				}
				return tx.SetPlayerRecordMatchDate(ctx, row.RecordID, row.Date)
			})
		}
		b.record(key, violations, repaired)
	}

	return v.finish(ctx, span, b), nil
}

// groupBy splits rows sorted by key into consecutive groups.
func groupBy[T any](rows []T, key func(T) int64) [][]T {
	var groups [][]T
	for i, row := range rows {
		if i == 0 || key(rows[i-1]) != key(row) {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], row)
	}
	return groups
}
