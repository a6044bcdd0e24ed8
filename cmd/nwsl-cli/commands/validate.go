package commands

import (
	"encoding/json"
	"log/slog"

	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/notify"
	"nwsl-backend/internal/validate"

	"github.com/spf13/cobra"
)

var (
	validateRepair bool
	validateJSON   bool
	validateNotify bool
)

func init() {
	validateCmd.Flags().BoolVar(&validateRepair, "repair", false, "Repairs what can be derived from a ground truth, overrides validate.repair.")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Prints the report as json instead of tables.")
	validateCmd.Flags().BoolVar(&validateNotify, "notify", false, "Emails the report to smtp.recipients if it needs attention.")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [--repair] [--json] [--notify]",
	Short: "Runs every consistency check over the canonical store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		opts := cfg.ValidateOptions()
		if cmd.Flags().Changed("repair") {
			opts.Repair = validateRepair
		}
		validator := validate.NewValidator(tel, database, chrono.NewStandardTime(nil), opts)
		run, runErr := validator.RunAll(ctx)

		path, err := run.WriteFile(cfg.Validate.ReportDir)
		if err != nil {
			return err
		}
		slog.Info("wrote report", "path", path)

		if validateJSON {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			err = encoder.Encode(run)
			if err != nil {
				return err
			}
		} else {
			run.Render(cmd.OutOrStdout())
		}

		if validateNotify {
			notifier := notify.NewNotifier(tel, cfg.Smtp, nil, cfg.NotifyOptions())
			_, err = notifier.Alert(ctx, run)
			if err != nil {
				return err
			}
		}
		return runErr
	},
}
