package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"nwsl-backend/internal/validate"

	"github.com/stretchr/testify/require"
)

const reports = "../../../internal/scrapers/fbref/testdata"

func setupConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	content := fmt.Sprintf(`{
		db: {file: %q},
		validate: {report_dir: %q},
		fetch: {cache_dir: %q},
	}`, filepath.Join(dir, "nwsl.db"), filepath.Join(dir, "reports"), filepath.Join(dir, "matches"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestIngestThenValidate(t *testing.T) {
	config := setupConfig(t)

	out := execute(t, "--config", config, "ingest", reports)
	require.Contains(t, out, "ingested")
	require.Contains(t, out, "12")

	out = execute(t, "--config", config, "validate", "--json")
	var run validate.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.Len(t, run.Checks, 7)
	require.Equal(t, 0, run.Summary.TotalIssues)
	require.Equal(t, 100.0, run.Summary.HealthScore)

	written, err := filepath.Glob(filepath.Join(filepath.Dir(config), "reports", "consistency_report_*.json"))
	require.NoError(t, err)
	require.Len(t, written, 1)

	// ingesting the same reports again keeps the store consistent
	execute(t, "--config", config, "ingest", reports)
	out = execute(t, "--config", config, "validate", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.Equal(t, 0, run.Summary.TotalIssues)
}

func TestMigrateStatus(t *testing.T) {
	config := setupConfig(t)

	out := execute(t, "--config", config, "migrate", "status")
	require.Contains(t, out, "0001_match_status")
	require.Contains(t, out, "pending")

	out = execute(t, "--config", config, "migrate", "apply")
	require.Contains(t, out, "applied 0005_team_record_match_date")

	out = execute(t, "--config", config, "migrate", "apply")
	require.Contains(t, out, "nothing to apply")
}

func TestExtract(t *testing.T) {
	out := execute(t, "extract", reports)
	require.Equal(t, 12, bytes.Count([]byte(out), []byte("\n")))
}

func TestRejectsUnknownEntity(t *testing.T) {
	rootCmd.SetArgs([]string{"--config", setupConfig(t), "merge", "stadium", "1", "2"})
	require.ErrorContains(t, rootCmd.ExecuteContext(context.Background()), "unknown entity")
}
