package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "countyscore",
	Short: "County-level obsolescence and growth scoring from satellite tiles",
	Long:  "Joins per-tile spectral index scores to US county boundaries, aggregates them into county scores and writes a styled GeoJSON choropleth.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
