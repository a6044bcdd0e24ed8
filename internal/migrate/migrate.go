// Package migrate evolves the canonical schema one step at a time. Every step
// runs inside a single transaction so a failed step leaves the schema exactly
// as it was before the step started.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nwsl.internal.migrate")

const (
	report_migrate_apply    = "migrate.apply"
	report_migrate_rollback = "migrate.rollback"
	report_migrate_discard  = "migrate.discard-tx"
)

// ErrBackfillIncomplete is returned when a backfill left rows without a value.
var ErrBackfillIncomplete = errors.New("backfill incomplete")

// StepFunc is one phase of a step, it runs inside the step's transaction.
type StepFunc = func(ctx context.Context, tx *db.Queries) error

// Step describes a single schema change.
type Step struct {
	Name string
	// Precondition returns true while the step still has to be applied, this
	// is what makes re-running a step a no-op.
	Precondition func(ctx context.Context, tx *db.Queries) (pending bool, err error)
	Forward      StepFunc
	// Backfill is optional.
	Backfill StepFunc
	// Postcondition verifies the result of forward and backfill before
	// anything is enforced.
	Postcondition StepFunc
	// Finalize is optional, it enforces the new constraints.
	Finalize StepFunc
	// Rollback restores the structure from before the step, data written into
	// new columns is lost.
	Rollback StepFunc
}

// StepError names the step and the phase that failed.
type StepError struct {
	Step  string
	Phase string
	Err   error
}

func (e StepError) Error() string {
	return fmt.Sprintf("migration %s: %s: %s", e.Step, e.Phase, e.Err.Error())
}

func (e StepError) Unwrap() error {
	return e.Err
}

type Orchestrator struct {
	tel    telemetry.API
	time   chrono.TimeAPI
	makeTx db.MakeTx
}

func NewOrchestrator(tel telemetry.API, time chrono.TimeAPI, database *sql.DB) Orchestrator {
	assert.NotNil(tel, "telemetry")
	assert.NotNil(time, "time")
	assert.NotNil(database, "database")

	return Orchestrator{
		tel:    telemetry.NewScopedAPI("migrate", tel),
		time:   time,
		makeTx: db.NewMakeTx(database),
	}
}

func (o Orchestrator) discard(step string, discard func() error) {
	err := discard()
	if err != nil {
		o.tel.ReportBroken(report_migrate_discard, step, err)
	}
}

// Apply runs a step if its precondition says it is pending. It returns true
// if the step was applied by this call.
func (o Orchestrator) Apply(ctx context.Context, step Step) (applied bool, err error) {
	ctx, span := tracer.Start(ctx, "Apply")
	defer span.End()
	span.SetAttributes(attribute.String("step", step.Name))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "migration step failed")
			o.tel.ReportBroken(report_migrate_apply, step.Name, err)
		}
	}()

	tx, discard, commit, err := o.makeTx(ctx)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "begin", Err: err}
	}
	defer o.discard(step.Name, discard)

	pending, err := step.Precondition(ctx, tx)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "precondition", Err: err}
	}
	if !pending {
		o.tel.ReportDebug("step already applied", step.Name)
		return false, nil
	}

	phases := []struct {
		name string
		fn   StepFunc
	}{
		{name: "forward", fn: step.Forward},
		{name: "backfill", fn: step.Backfill},
		{name: "postcondition", fn: step.Postcondition},
		{name: "finalize", fn: step.Finalize},
	}
	for _, phase := range phases {
		if phase.fn == nil {
			continue
		}
		err = phase.fn(ctx, tx)
		if err != nil {
			return false, StepError{Step: step.Name, Phase: phase.name, Err: err}
		}
	}

	err = tx.RecordMigration(ctx, step.Name, o.time.Now().Unix())
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "ledger", Err: err}
	}
	err = commit()
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "commit", Err: err}
	}

	o.tel.ReportDebug("applied step", step.Name)
	return true, nil
}

// Rollback reverts an applied step. It returns true if the step was reverted
// by this call.
func (o Orchestrator) Rollback(ctx context.Context, step Step) (reverted bool, err error) {
	ctx, span := tracer.Start(ctx, "Rollback")
	defer span.End()
	span.SetAttributes(attribute.String("step", step.Name))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "migration rollback failed")
			o.tel.ReportBroken(report_migrate_rollback, step.Name, err)
		}
	}()

	tx, discard, commit, err := o.makeTx(ctx)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "begin", Err: err}
	}
	defer o.discard(step.Name, discard)

	pending, err := step.Precondition(ctx, tx)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "precondition", Err: err}
	}
	if pending {
		return false, nil
	}

	err = step.Rollback(ctx, tx)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "rollback", Err: err}
	}
	err = tx.ForgetMigration(ctx, step.Name)
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "ledger", Err: err}
	}
	err = commit()
	if err != nil {
		return false, StepError{Step: step.Name, Phase: "commit", Err: err}
	}

	o.tel.ReportDebug("reverted step", step.Name)
	return true, nil
}

// ApplyAll applies steps in order and stops at the first failure, it returns
// the names of the steps applied by this call.
func (o Orchestrator) ApplyAll(ctx context.Context, steps []Step) ([]string, error) {
	var applied []string
	for _, step := range steps {
		ok, err := o.Apply(ctx, step)
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, step.Name)
		}
	}
	return applied, nil
}

// StepStatus is the state of a step against the current schema.
type StepStatus struct {
	Name      string
	Pending   bool
	AppliedAt int64
}

// Status reports, for every step, whether it is pending and when it was applied.
func (o Orchestrator) Status(ctx context.Context, steps []Step) ([]StepStatus, error) {
	tx, discard, _, err := o.makeTx(ctx)
	if err != nil {
		return nil, err
	}
	defer o.discard("status", discard)

	ledger, err := tx.ListMigrations(ctx)
	if err != nil {
		return nil, err
	}
	appliedAt := map[string]int64{}
	for _, row := range ledger {
		appliedAt[row.Name] = row.AppliedAt
	}

	out := make([]StepStatus, len(steps))
	for i, step := range steps {
		pending, err := step.Precondition(ctx, tx)
		if err != nil {
			return nil, StepError{Step: step.Name, Phase: "precondition", Err: err}
		}
		out[i] = StepStatus{
			Name:      step.Name,
			Pending:   pending,
			AppliedAt: appliedAt[step.Name],
		}
	}
	return out, nil
}
