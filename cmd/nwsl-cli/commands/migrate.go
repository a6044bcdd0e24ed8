package commands

import (
	"fmt"
	"time"

	"nwsl-backend/internal/components/chrono"
	"nwsl-backend/internal/migrate"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateApplyCmd, migrateRollbackCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openOrchestrator(cmd *cobra.Command) (migrate.Orchestrator, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return migrate.Orchestrator{}, nil, err
	}
	database, err := cfg.DB.OpenDB()
	if err != nil {
		return migrate.Orchestrator{}, nil, err
	}
	err = migrate.EnsureBaseline(cmd.Context(), database)
	if err != nil {
		database.Close()
		return migrate.Orchestrator{}, nil, err
	}
	return migrate.NewOrchestrator(tel, chrono.NewStandardTime(nil), database), database.Close, nil
}

func stepsFromArgs(args []string) ([]migrate.Step, error) {
	if len(args) == 0 {
		return migrate.Builtin, nil
	}
	var steps []migrate.Step
	for _, name := range args {
		step, ok := migrate.StepByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown migration '%s'", name)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspects and applies the schema migrations of the canonical store.",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Lists every migration and whether it is still pending.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orchestrator, closeDB, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		statuses, err := orchestrator.Status(cmd.Context(), migrate.Builtin)
		if err != nil {
			return err
		}
		t := newTable(cmd, table.Row{"Migration", "Status", "Applied at"})
		for _, s := range statuses {
			status := "applied"
			if s.Pending {
				status = "pending"
			}
			appliedAt := ""
			if s.AppliedAt > 0 {
				appliedAt = time.Unix(s.AppliedAt, 0).UTC().Format(time.DateTime)
			}
			t.AppendRow(table.Row{s.Name, status, appliedAt})
		}
		t.Render()
		return nil
	},
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply [migration...]",
	Short: "Applies the migrations given, or every pending one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := stepsFromArgs(args)
		if err != nil {
			return err
		}
		orchestrator, closeDB, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		applied, err := orchestrator.ApplyAll(cmd.Context(), steps)
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
		}
		if len(applied) == 0 && err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
		}
		return err
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback <migration>",
	Short: "Reverts a single migration.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := stepsFromArgs(args)
		if err != nil {
			return err
		}
		orchestrator, closeDB, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		reverted, err := orchestrator.Rollback(cmd.Context(), steps[0])
		if err != nil {
			return err
		}
		if !reverted {
			fmt.Fprintln(cmd.OutOrStdout(), args[0], "is not applied")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reverted", args[0])
		return nil
	},
}
