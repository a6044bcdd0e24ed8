package commands

import (
	"fmt"
	"strconv"

	"nwsl-backend/internal/identity"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var suggestThreshold float64

func init() {
	suggestCmd.Flags().Float64Var(&suggestThreshold, "threshold", 0.92, "The minimum name similarity of a suggestion.")
	rootCmd.AddCommand(mergeCmd, suggestCmd)
}

func parseEntity(s string) (identity.EntityType, error) {
	entity := identity.EntityType(s)
	switch entity {
	case identity.EntityTeam, identity.EntityPlayer, identity.EntityVenue, identity.EntityMatch, identity.EntitySeason:
		return entity, nil
	}
	return "", fmt.Errorf("unknown entity '%s'", s)
}

var mergeCmd = &cobra.Command{
	Use:   "merge <entity> <id> <id>",
	Short: "Collapses two duplicate entities into one.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseEntity(args[0])
		if err != nil {
			return err
		}
		var ids [2]int64
		for i, arg := range args[1:] {
			ids[i], err = strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id '%s': %w", arg, err)
			}
		}

		ctx := cmd.Context()
		database, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		resolver := identity.NewResolver(tel, database)
		winner, err := resolver.Merge(
			ctx, entity,
			identity.Ref{Entity: entity, ID: ids[0]},
			identity.Ref{Entity: entity, ID: ids[1]},
		)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merged into %s %d\n", entity, winner.ID)
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <team | player | venue>",
	Short: "Lists entities that look like duplicates of each other.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := parseEntity(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		database, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		suggestions, err := identity.NewResolver(tel, database).SuggestMerges(ctx, entity, suggestThreshold)
		if err != nil {
			return err
		}
		t := newTable(cmd, table.Row{"A", "B", "Score", "Reason"})
		for _, s := range suggestions {
			t.AppendRow(table.Row{
				fmt.Sprintf("%d (%s)", s.A.ID, s.A.NativeID),
				fmt.Sprintf("%d (%s)", s.B.ID, s.B.NativeID),
				fmt.Sprintf("%.3f", s.Score),
				s.Reason,
			})
		}
		t.Render()
		return nil
	},
}
