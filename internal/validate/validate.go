// Package validate checks the cross table invariants of the canonical store
// and repairs the ones that have a ground truth.
package validate

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("nwsl.internal.validate")
var meter = otel.Meter("nwsl.internal.validate")
var inconsistentCounter, _ = meter.Int64Counter(
	"validate.inconsistent_aggregates",
	metric.WithDescription("aggregates found violating an invariant"),
)
var repairedCounter, _ = meter.Int64Counter(
	"validate.repaired_aggregates",
	metric.WithDescription("aggregates repaired by a check"),
)

const (
	report_db_query        = "db.query"
	report_validate_repair = "validator.repair"
	report_validate_check  = "validator.check"
	report_validate_tx     = "validator.discard-tx"
)

const (
	CheckXG               = "xg_consistency"
	CheckGoals            = "goal_consistency"
	CheckCompleteness     = "record_completeness"
	CheckShotGoals        = "shot_goal_consistency"
	CheckPlayerGoals      = "player_goal_totals"
	CheckDetailPercentage = "detail_percentages"
	CheckDenormalized     = "denormalized_fields"
)

type State string

const (
	StateUnchecked    State = "UNCHECKED"
	StateConsistent   State = "CONSISTENT"
	StateInconsistent State = "INCONSISTENT"
)

// Violation is a single field of an aggregate that does not hold the value
// its invariant expects.
type Violation struct {
	Aggregate string `json:"aggregate"`
	Field     string `json:"field"`
	Expected  any    `json:"expected"`
	Actual    any    `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: expected %v got %v", v.Aggregate, v.Field, v.Expected, v.Actual)
}

// Aggregate is the outcome of a check on one aggregate (a match, a team
// record or a detail row). Violations hold the values found before any
// repair, so they double as the before/after audit of a repair.
type Aggregate struct {
	Key        string      `json:"key"`
	State      State       `json:"state"`
	Repaired   bool        `json:"repaired,omitempty"`
	Violations []Violation `json:"violations"`
}

// Report is the result of one check. Only aggregates that were found
// inconsistent are listed, the consistent ones are only counted.
type Report struct {
	CheckName         string      `json:"check_name"`
	TotalChecked      int         `json:"total_checked"`
	ConsistentCount   int         `json:"consistent_count"`
	InconsistentCount int         `json:"inconsistent_count"`
	RepairedCount     int         `json:"repaired_count"`
	SkippedCount      int         `json:"skipped_count"`
	SampleViolations  []Violation `json:"sample_violations"`
	Aggregates        []Aggregate `json:"aggregates"`
}

// ConsistencyRate is the percentage of checked aggregates that were
// consistent before any repair.
func (r Report) ConsistencyRate() float64 {
	if r.TotalChecked == 0 {
		return 100
	}
	clean := r.ConsistentCount - r.RepairedCount
	return math.Round(10000*float64(clean)/float64(r.TotalChecked)) / 100
}

// Issues is the amount of aggregates found inconsistent, repaired or not.
func (r Report) Issues() int {
	return r.InconsistentCount + r.RepairedCount
}

type Options struct {
	// Repair enables the repairs of the checks that have a ground truth.
	Repair bool
	// SampleLimit is the amount of violations copied into the sample of a
	// report, defaults to 5.
	SampleLimit int
	// ShotEra is the first date (YYYY-MM-DD) with tracked shots, earlier
	// matches are skipped by the shot goal check. Defaults to 2019-01-01.
	ShotEra string
	// PlayerEra is the first date with player records, defaults to 2013-01-01.
	PlayerEra string
	// GoalTolerance is the difference allowed between a team's goals and the
	// sum of its players' goals.
	GoalTolerance int64
	// XGTolerance is the difference allowed between two expected goal values,
	// defaults to 0.005.
	XGTolerance float64
}

func (o Options) withDefaults() Options {
	if o.SampleLimit <= 0 {
		o.SampleLimit = 5
	}
	if o.ShotEra == "" {
		o.ShotEra = "2019-01-01"
	}
	if o.PlayerEra == "" {
		o.PlayerEra = "2013-01-01"
	}
	if o.XGTolerance <= 0 {
		o.XGTolerance = 0.005
	}
	return o
}

type Validator struct {
	tel    telemetry.API
	qry    *db.Queries
	makeTx db.MakeTx
	time   chrono.TimeAPI
	opts   Options
}

func NewValidator(tel telemetry.API, database *sql.DB, time chrono.TimeAPI, opts Options) *Validator {
	assert.NotNil(tel, "telemetry")
	assert.NotNil(database, "database")
	assert.NotNil(time, "time")

	return &Validator{
		tel:    telemetry.NewScopedAPI("validate", tel),
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		time:   time,
		opts:   opts.withDefaults(),
	}
}

// builder accumulates the outcome of a check aggregate by aggregate.
type builder struct {
	report Report
	limit  int
}

func (v *Validator) newBuilder(check string) *builder {
	return &builder{
		report: Report{
			CheckName:        check,
			SampleViolations: []Violation{},
			Aggregates:       []Aggregate{},
		},
		limit: v.opts.SampleLimit,
	}
}

func (b *builder) skip() {
	b.report.SkippedCount++
}

// record counts an aggregate, it is consistent when it has no violations.
func (b *builder) record(key string, violations []Violation, repaired bool) {
	b.report.TotalChecked++
	if len(violations) == 0 {
		b.report.ConsistentCount++
		return
	}

	agg := Aggregate{Key: key, State: StateUnchecked, Violations: violations}
	if repaired {
		agg.State = StateConsistent
		agg.Repaired = true
		b.report.ConsistentCount++
		b.report.RepairedCount++
	} else {
		agg.State = StateInconsistent
		b.report.InconsistentCount++
	}
	b.report.Aggregates = append(b.report.Aggregates, agg)

	for _, violation := range violations {
		if len(b.report.SampleViolations) >= b.limit {
			break
		}
		b.report.SampleViolations = append(b.report.SampleViolations, violation)
	}
}

func (v *Validator) discard(key string, discard func() error) {
	err := discard()
	if err != nil {
		v.tel.ReportBroken(report_validate_tx, key, err)
	}
}

// repair runs fn in its own transaction, nothing of it is kept when it fails.
func (v *Validator) repair(ctx context.Context, check, key string, violations []Violation, fn func(tx *db.Queries) error) bool {
	tx, discard, commit, err := v.makeTx(ctx)
	if err != nil {
		v.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return false
	}
	defer v.discard(key, discard)

	err = fn(tx)
	if err != nil {
		v.tel.ReportBroken(report_validate_repair, check, key, err)
		return false
	}
	err = commit()
	if err != nil {
		v.tel.ReportBroken(report_validate_repair, check, key, fmt.Errorf("commit: %w", err))
		return false
	}

	for _, violation := range violations {
		v.tel.ReportWarning(report_validate_repair, check, key, violation.Field, violation.Actual, violation.Expected)
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func nullable[T any](value T, valid bool) any {
	if !valid {
		return nil
	}
	return value
}
