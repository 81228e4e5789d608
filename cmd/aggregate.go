package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/loghub/countyscore/internal/config"
	"github.com/loghub/countyscore/internal/pipeline"
	"github.com/loghub/countyscore/internal/region"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Score counties from a tile table and write the GeoJSON choropleth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyOutputFlags(cmd, cfg); err != nil {
			return err
		}

		req := pipeline.Request{}
		req.Tiles, _ = cmd.Flags().GetString("tiles")
		req.Output, _ = cmd.Flags().GetString("output")
		req.Region, _ = cmd.Flags().GetString("region")

		states, _ := cmd.Flags().GetStringSlice("states")
		if req.Region != "" && len(states) == 0 {
			r, err := region.Lookup(req.Region, cfg.Regions)
			if err != nil {
				return err
			}
			req.Region, states = r.Name, r.States
		}
		if len(states) > 0 {
			parsed, err := region.ParseStates(states)
			if err != nil {
				return err
			}
			req.States = parsed
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return err
		}
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	f := aggregateCmd.Flags()
	f.String("tiles", "", "tile table path or URL (default input.tiles)")
	f.String("counties", "", "county boundary path or URL (default counties.path)")
	f.String("output", "", "GeoJSON output path (default export.output)")
	f.String("region", "", "named region to score; sets the state filter")
	f.StringSlice("states", nil, "state FIPS codes or abbreviations to keep")
	addOutputFlags(aggregateCmd)
	rootCmd.AddCommand(aggregateCmd)
}

// addOutputFlags registers the flags shared by aggregate and regions.
func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Bool("visualize", false, "also render a PNG choropleth next to the output")
	f.Float64("simplify", 0, "Douglas-Peucker tolerance in degrees (0 disables)")
	f.String("legend-field", "", "score field used for fill colors")
	f.Int("image-width", 0, "PNG width in pixels")
}

// applyOutputFlags copies explicitly set flags over the loaded config.
func applyOutputFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("counties") {
		c.Counties.Path, _ = f.GetString("counties")
	}
	if f.Changed("visualize") {
		c.Export.Visualize, _ = f.GetBool("visualize")
	}
	if f.Changed("simplify") {
		c.Export.Simplify, _ = f.GetFloat64("simplify")
	}
	if f.Changed("legend-field") {
		c.Export.LegendField, _ = f.GetString("legend-field")
	}
	if f.Changed("image-width") {
		c.Export.ImageWidth, _ = f.GetInt("image-width")
	}
	if c.Export.Simplify < 0 {
		return eris.Errorf("simplify tolerance must be >= 0, got %g", c.Export.Simplify)
	}
	return nil
}

// formatResult writes a one-run summary to w.
func formatResult(w io.Writer, res *pipeline.Result) {
	_, _ = fmt.Fprintf(w, "region %s: %d counties scored -> %s\n", res.Region, res.Stats.CountiesScored, res.Output)
	_, _ = fmt.Fprintf(w, "  tiles: %d loaded, %d skipped, %d outside all counties\n",
		res.Stats.TilesLoaded, res.Stats.TilesSkipped, res.Stats.TilesDropped)
	if res.Stats.CountiesExcluded > 0 {
		_, _ = fmt.Fprintf(w, "  counties excluded for bad geometry: %d\n", res.Stats.CountiesExcluded)
	}
	if res.Stats.ValidationStatus != "" {
		_, _ = fmt.Fprintf(w, "  validation: %s (%d issues)\n", res.Stats.ValidationStatus, res.Stats.ValidationIssues)
	}
	if res.Image != "" {
		_, _ = fmt.Fprintf(w, "  image: %s\n", res.Image)
	}
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "  run: %s\n", res.RunID)
	}
}
