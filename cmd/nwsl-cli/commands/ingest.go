package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/ingest"
	"nwsl-backend/internal/scrapers/fbref"
	"nwsl-backend/internal/source"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var ingestWorkers int

func init() {
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "The amount of reports parsed at once, overrides fetch.workers.")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(extractCmd)
}

// openFeed returns a feed over a directory of match reports, a json lines
// file or stdin when path is "-".
func openFeed(path string, workers int) (source.Feed, io.Closer, error) {
	if path == "-" {
		return source.NewJSONLinesFeed(os.Stdin), io.NopCloser(nil), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return fbref.NewDirFeed(tel, path, workers), io.NopCloser(nil), nil
	}
	if !strings.HasSuffix(path, ".jsonl") {
		return nil, nil, fmt.Errorf("%s is neither a directory of match reports nor a .jsonl file", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return source.NewJSONLinesFeed(file), file, nil
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <reports dir | records.jsonl | ->",
	Short: "Ingests source records into the canonical store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, cfg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		workers := cfg.Fetch.Workers
		if ingestWorkers > 0 {
			workers = ingestWorkers
		}
		feed, closer, err := openFeed(args[0], workers)
		if err != nil {
			return err
		}
		defer closer.Close()

		resolver := identity.NewResolver(tel, database)
		cached, err := resolver.Warm(ctx)
		if err != nil {
			return err
		}
		slog.Info("warmed identity cache", "native_ids", cached)

		engine := ingest.NewEngine(tel, resolver, database, cfg.IngestOptions())
		start := time.Now()
		summary, err := engine.Run(ctx, feed)
		slog.Info("ingest done", "seconds", time.Since(start).Seconds())

		t := newTable(cmd, table.Row{"Result", "Records"})
		t.AppendRow(table.Row{"processed", summary.Processed})
		t.AppendRow(table.Row{"ingested", summary.Ingested})
		reasons := make([]string, 0, len(summary.Skipped))
		for reason := range summary.Skipped {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			t.AppendRow(table.Row{"skipped: " + reason, summary.Skipped[reason]})
		}
		t.Render()
		return err
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <reports dir>",
	Short: "Writes the records of a directory of match reports to stdout as json lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers := ingestWorkers
		if workers <= 0 {
			cfg, err := loadConfig()
			if err == nil {
				workers = cfg.Fetch.Workers
			}
		}
		count, err := source.WriteJSONLines(cmd.Context(), cmd.OutOrStdout(), fbref.NewDirFeed(tel, args[0], workers))
		slog.Info("extracted records", "count", count)
		return err
	},
}
