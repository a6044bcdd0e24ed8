package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		db: {url: "libsql://nwsl.example.com", auth_token: "token"},
		validate: {repair: true, shot_era: "2020-01-01", xg_tolerance: 0.01},
		smtp: {server: "smtp.example.com", port: 587, recipients: ["data@example.com"]},
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		validate: {schedule: "*/5 * * * *", timezone: "America/Chicago"},
		fetch: {requests_per_minute: 5},
	}`), 0644))

	config, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "libsql://nwsl.example.com", config.DB.Url)
	require.Empty(t, config.DB.File)
	require.Equal(t, "*/5 * * * *", config.Validate.Schedule)
	require.Equal(t, "reports", config.Validate.ReportDir)
	require.Equal(t, "matches", config.Fetch.CacheDir)

	loc, err := config.Location()
	require.NoError(t, err)
	require.Equal(t, "America/Chicago", loc.String())

	opts := config.ValidateOptions()
	require.True(t, opts.Repair)
	require.Equal(t, "2020-01-01", opts.ShotEra)
	require.Equal(t, 0.01, opts.XGTolerance)
	require.Equal(t, 5, config.FetcherOptions().RequestsPerMinute)
	require.Equal(t, []string{"data@example.com"}, config.Smtp.Recipients)
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	config, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "nwsl.db", config.DB.File)
	require.Equal(t, "0 6 * * *", config.Validate.Schedule)
	require.Equal(t, "127.0.0.1:8090", config.Validate.Listen)
	loc, err := config.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
