package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/config"
	"nwsl-backend/internal/migrate"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "nwsl-cli",
	Short:         "nwsl-cli ingests match reports into the canonical store and keeps it consistent.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "The configuration file to read.")
}

// ExecuteContext runs the command line and returns the exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

var tel telemetry.API = telemetry.SlogAPI{}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// openStore opens the configured store with its schema up to date.
func openStore(ctx context.Context) (*sql.DB, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	database, err := migrate.OpenAndMigrate(ctx, tel, cfg.DB)
	if err != nil {
		return nil, cfg, err
	}
	return database, cfg, nil
}

func newTable(cmd *cobra.Command, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}
