// Package config is the configuration shared by the cli and the validation
// daemon, read from config.json5 and its local override.
package config

import (
	"fmt"
	"time"

	"nwsl-backend/internal/ingest"
	"nwsl-backend/internal/notify"
	"nwsl-backend/internal/scrapers/fbref"
	"nwsl-backend/internal/validate"
	"nwsl-backend/lib/configutil"
	"nwsl-backend/lib/sqliteutil"
)

const DefaultPath = "config.json5"

type IngestConfig struct {
	StarterRows    int64 `json:"starter_rows"`
	StarterMinutes int64 `json:"starter_minutes"`
}

type ValidateConfig struct {
	Repair        bool    `json:"repair"`
	SampleLimit   int     `json:"sample_limit"`
	ShotEra       string  `json:"shot_era"`
	PlayerEra     string  `json:"player_era"`
	GoalTolerance int64   `json:"goal_tolerance"`
	XGTolerance   float64 `json:"xg_tolerance"`
	// Schedule is the cron spec the daemon runs the checks on, read in
	// Timezone (an IANA name, UTC when empty).
	Schedule  string  `json:"schedule"`
	Timezone  string  `json:"timezone"`
	Listen    string  `json:"listen"`
	ReportDir string  `json:"report_dir"`
	MinHealth float64 `json:"min_health"`
}

type FetchConfig struct {
	BaseURL           string `json:"base_url"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	CacheDir          string `json:"cache_dir"`
	DumpDir           string `json:"dump_dir"`
	Workers           int    `json:"workers"`
}

type Config struct {
	DB       sqliteutil.Config `json:"db"`
	Ingest   IngestConfig      `json:"ingest"`
	Validate ValidateConfig    `json:"validate"`
	Fetch    FetchConfig       `json:"fetch"`
	Smtp     notify.SmtpConfig `json:"smtp"`
}

// Load reads the configuration at path and fills in defaults.
func Load(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	config.defaults()
	return config, nil
}

func (c *Config) defaults() {
	if c.DB.File == "" && c.DB.Url == "" {
		c.DB.File = "nwsl.db"
	}
	if c.Validate.Schedule == "" {
		c.Validate.Schedule = "0 6 * * *"
	}
	if c.Validate.Listen == "" {
		c.Validate.Listen = "127.0.0.1:8090"
	}
	if c.Validate.ReportDir == "" {
		c.Validate.ReportDir = "reports"
	}
	if c.Fetch.CacheDir == "" {
		c.Fetch.CacheDir = "matches"
	}
}

// Location returns the timezone of the validation schedule.
func (c Config) Location() (*time.Location, error) {
	if c.Validate.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Validate.Timezone)
}

func (c Config) IngestOptions() ingest.Options {
	return ingest.Options{
		StarterRows:    c.Ingest.StarterRows,
		StarterMinutes: c.Ingest.StarterMinutes,
	}
}

func (c Config) ValidateOptions() validate.Options {
	return validate.Options{
		Repair:        c.Validate.Repair,
		SampleLimit:   c.Validate.SampleLimit,
		ShotEra:       c.Validate.ShotEra,
		PlayerEra:     c.Validate.PlayerEra,
		GoalTolerance: c.Validate.GoalTolerance,
		XGTolerance:   c.Validate.XGTolerance,
	}
}

func (c Config) FetcherOptions() fbref.FetcherOptions {
	return fbref.FetcherOptions{
		BaseURL:           c.Fetch.BaseURL,
		RequestsPerMinute: c.Fetch.RequestsPerMinute,
		CacheDir:          c.Fetch.CacheDir,
		DumpDir:           c.Fetch.DumpDir,
	}
}

func (c Config) NotifyOptions() notify.Options {
	return notify.Options{MinHealth: c.Validate.MinHealth}
}
