package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/fetcher"
	"github.com/loghub/countyscore/internal/pipeline"
)

var countiesCmd = &cobra.Command{
	Use:   "counties",
	Short: "Manage the county boundary reference dataset",
}

var countiesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the TIGER/Line county shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		source, _ := cmd.Flags().GetString("url")
		if source == "" {
			source = cfg.Counties.URL
		}
		year := cfg.Counties.Year
		if cmd.Flags().Changed("year") {
			year, _ = cmd.Flags().GetInt("year")
		}

		resolver := fetcher.NewResolver(pipeline.FetchOptions(cfg.Fetch), cfg.Counties.CacheDir)
		path, err := county.Fetch(ctx, resolver, source, year)
		if err != nil {
			return err
		}

		res, err := county.Load(ctx, path, nil)
		if err != nil {
			return err
		}
		zap.L().Info("county boundaries ready",
			zap.String("path", path),
			zap.Int("counties", len(res.Counties)),
			zap.Int("excluded", res.ExcludedTotal()),
		)
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	countiesFetchCmd.Flags().String("url", "", "source URL (default TIGER/Line national county file for --year)")
	countiesFetchCmd.Flags().Int("year", 0, "TIGER/Line vintage (default counties.year)")
	countiesCmd.AddCommand(countiesFetchCmd)
	rootCmd.AddCommand(countiesCmd)
}
