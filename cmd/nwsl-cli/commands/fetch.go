package commands

import (
	"log/slog"

	"nwsl-backend/internal/scrapers/fbref"

	"github.com/spf13/cobra"
)

var fetchMatches []string

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchMatches, "match", nil, "Match ids to fetch in addition to the ones linked from the pages given.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [page path...] [--match <id>]",
	Short: "Downloads the match reports linked from FBref pages into the cache dir.",
	Long: `Downloads the match reports linked from FBref pages (like
/en/comps/182/schedule/NWSL-Scores-and-Fixtures) into fetch.cache_dir.
Reports already in the cache dir are not downloaded again, the cache dir can
then be given to the ingest command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fetcher, err := fbref.NewFetcher(tel, cfg.FetcherOptions())
		if err != nil {
			return err
		}

		ids := append([]string{}, fetchMatches...)
		for _, page := range args {
			links, err := fetcher.MatchLinks(ctx, page)
			if err != nil {
				return err
			}
			slog.Info("found match reports", "page", page, "count", len(links))
			ids = append(ids, links...)
		}

		downloaded, err := fetcher.FetchAll(ctx, ids)
		slog.Info("fetch done", "matches", len(ids), "downloaded", downloaded, "cache_dir", cfg.Fetch.CacheDir)
		return err
	},
}
