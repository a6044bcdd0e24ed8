package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel/attribute"
)

// Check is a named check of the validator.
type Check struct {
	Name string
	Run  func(ctx context.Context) (Report, error)
}

// Checks returns every check in the order RunAll runs them.
func (v *Validator) Checks() []Check {
	return []Check{
		{Name: CheckXG, Run: v.CheckXGConsistency},
		{Name: CheckGoals, Run: v.CheckGoalConsistency},
		{Name: CheckCompleteness, Run: v.CheckRecordCompleteness},
		{Name: CheckShotGoals, Run: v.CheckShotGoalConsistency},
		{Name: CheckPlayerGoals, Run: v.CheckPlayerGoalTotals},
		{Name: CheckDetailPercentage, Run: v.CheckDetailPercentages},
		{Name: CheckDenormalized, Run: v.CheckDenormalizedFields},
	}
}

type Summary struct {
	HealthScore    float64 `json:"overall_health_score"`
	TotalChecks    int     `json:"total_checks_performed"`
	TotalIssues    int     `json:"total_issues_found"`
	TotalRepaired  int     `json:"total_repaired"`
	Recommendation string  `json:"recommendation"`
}

// Run is the result of running every check once.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Repair     bool      `json:"repair"`
	Checks     []Report  `json:"checks"`
	Summary    Summary   `json:"summary"`
}

// Recommendation describes what to do about the state of the store.
func Recommendation(healthScore float64, issues int) string {
	switch {
	case healthScore >= 95 && issues < 10:
		return "Store is in excellent condition, continue regular monitoring."
	case healthScore >= 90:
		return "Store is healthy but has minor issues, run the validator with repairs enabled."
	case healthScore >= 80:
		return "Store has moderate issues, review the flagged aggregates and run the validator with repairs enabled."
	default:
		return "Store has significant consistency issues, immediate remediation required."
	}
}

// Summarize computes the health score of a set of reports, the mean of the
// consistency rates of the checks that checked anything.
func Summarize(reports []Report) Summary {
	summary := Summary{TotalChecks: len(reports)}
	var rates float64
	var counted int
	for _, r := range reports {
		summary.TotalIssues += r.Issues()
		summary.TotalRepaired += r.RepairedCount
		if r.TotalChecked == 0 {
			continue
		}
		rates += r.ConsistencyRate()
		counted++
	}
	summary.HealthScore = 100
	if counted > 0 {
		summary.HealthScore = math.Round(100*rates/float64(counted)) / 100
	}
	summary.Recommendation = Recommendation(summary.HealthScore, summary.TotalIssues)
	return summary
}

// RunAll runs every check. A check that fails does not stop the others, its
// error is joined into the returned one.
func (v *Validator) RunAll(ctx context.Context) (Run, error) {
	ctx, span := tracer.Start(ctx, "RunAll")
	defer span.End()

	run := Run{
		ID:        uuid.NewString(),
		StartedAt: v.time.Now(),
		Repair:    v.opts.Repair,
	}
	span.SetAttributes(attribute.String("run_id", run.ID))

	var errs []error
	for _, check := range v.Checks() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := check.Run(ctx)
		if err != nil {
			v.tel.ReportBroken(report_validate_check, check.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", check.Name, err))
			continue
		}
		run.Checks = append(run.Checks, report)
	}

	run.FinishedAt = v.time.Now()
	run.Summary = Summarize(run.Checks)
	span.SetAttributes(
		attribute.Float64("health_score", run.Summary.HealthScore),
		attribute.Int("issues", run.Summary.TotalIssues),
	)
	return run, errors.Join(errs...)
}

// WriteFile writes the run as json into dir and returns the path written.
func (r Run) WriteFile(dir string) (string, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("consistency_report_%s.json", r.StartedAt.Format("20060102_150405")))
	content, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	err = os.WriteFile(path, content, 0644)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Render writes the run as tables, one row per check followed by the
// sampled violations.
func (r Run) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Check", "Checked", "Consistent", "Inconsistent", "Repaired", "Skipped", "Rate"})
	for _, report := range r.Checks {
		t.AppendRow(table.Row{
			report.CheckName,
			report.TotalChecked,
			report.ConsistentCount,
			report.InconsistentCount,
			report.RepairedCount,
			report.SkippedCount,
			fmt.Sprintf("%.2f%%", report.ConsistencyRate()),
		})
	}
	t.AppendFooter(table.Row{
		"health", "", "", r.Summary.TotalIssues, r.Summary.TotalRepaired, "",
		fmt.Sprintf("%.2f%%", r.Summary.HealthScore),
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	samples := table.NewWriter()
	samples.SetOutputMirror(w)
	samples.AppendHeader(table.Row{"Check", "Aggregate", "Field", "Expected", "Actual"})
	count := 0
	for _, report := range r.Checks {
		for _, violation := range report.SampleViolations {
			samples.AppendRow(table.Row{
				report.CheckName, violation.Aggregate, violation.Field,
				violation.Expected, violation.Actual,
			})
			count++
		}
	}
	if count > 0 {
		samples.SetStyle(table.StyleRounded)
		samples.Render()
	}

	fmt.Fprintln(w, r.Summary.Recommendation)
}
