package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAll(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx := context.Background()

	run, err := f.validator(Options{}).RunAll(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, testNow, run.StartedAt)
	require.Len(t, run.Checks, 7)
	for i, check := range f.validator(Options{}).Checks() {
		require.Equal(t, check.Name, run.Checks[i].CheckName)
	}

	// only the expected goals of m1 are missing
	require.Equal(t, 1, run.Summary.TotalIssues)
	require.Equal(t, 7, run.Summary.TotalChecks)
	require.InDelta(t, 600.0/7, run.Summary.HealthScore, 0.01)
	require.Equal(t, Recommendation(run.Summary.HealthScore, 1), run.Summary.Recommendation)

	run, err = f.validator(Options{Repair: true}).RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Summary.TotalRepaired)

	run, err = f.validator(Options{Repair: true}).RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, run.Summary.TotalIssues)
	require.Equal(t, 100.0, run.Summary.HealthScore)
}

func TestRunAllOnEmptyStore(t *testing.T) {
	f := setup(t)

	run, err := f.validator(Options{}).RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100.0, run.Summary.HealthScore)
	require.Equal(t, Recommendation(100, 0), run.Summary.Recommendation)
}

func TestRunAllStopsWhenCancelled(t *testing.T) {
	f := setup(t, reportedMatch()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.validator(Options{}).RunAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, run.Checks)
}

func TestRecommendation(t *testing.T) {
	cases := []struct {
		score  float64
		issues int
		same   float64
	}{
		{score: 99, issues: 3, same: 95},
		{score: 99, issues: 12, same: 90},
		{score: 91, issues: 0, same: 90},
		{score: 85, issues: 0, same: 80},
		{score: 10, issues: 0, same: 0},
	}
	for _, c := range cases {
		require.Equal(t, Recommendation(c.same, c.issues), Recommendation(c.score, c.issues), "%v", c.score)
	}
	require.NotEqual(t, Recommendation(95, 0), Recommendation(94.99, 0))
	require.NotEqual(t, Recommendation(90, 0), Recommendation(89.99, 0))
	require.NotEqual(t, Recommendation(80, 0), Recommendation(79.99, 0))
}

func TestSummarizeIgnoresEmptyChecks(t *testing.T) {
	summary := Summarize([]Report{
		{TotalChecked: 4, ConsistentCount: 4, RepairedCount: 1},
		{TotalChecked: 2, ConsistentCount: 1, InconsistentCount: 1},
		{},
	})
	require.Equal(t, 3, summary.TotalChecks)
	require.Equal(t, 2, summary.TotalIssues)
	require.Equal(t, 1, summary.TotalRepaired)
	require.Equal(t, 62.5, summary.HealthScore)
}

func TestWriteFile(t *testing.T) {
	f := setup(t, reportedMatch()...)
	run, err := f.validator(Options{}).RunAll(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := run.WriteFile(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "consistency_report_20241001_120000.json"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		ID      string `json:"id"`
		Summary struct {
			HealthScore float64 `json:"overall_health_score"`
			TotalIssues int     `json:"total_issues_found"`
		} `json:"summary"`
		Checks []struct {
			CheckName string `json:"check_name"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(content, &decoded))
	require.Equal(t, run.ID, decoded.ID)
	require.Equal(t, run.Summary.HealthScore, decoded.Summary.HealthScore)
	require.Equal(t, 1, decoded.Summary.TotalIssues)
	require.Len(t, decoded.Checks, 7)
}

func TestRender(t *testing.T) {
	f := setup(t, reportedMatch()...)
	run, err := f.validator(Options{}).RunAll(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	run.Render(&out)
	for _, check := range run.Checks {
		require.Contains(t, out.String(), check.CheckName)
	}
	require.Contains(t, out.String(), "match.xg_home")
	require.Contains(t, out.String(), run.Summary.Recommendation)
}
