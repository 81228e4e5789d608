package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/pipeline"
)

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Print the color stops used for a score field",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if f := cmd.Flags(); f.Changed("field") {
			cfg.Export.LegendField, _ = f.GetString("field")
		}
		opts, err := pipeline.ExportOptions(cfg.Export)
		if err != nil {
			return err
		}
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 2 {
			return eris.Errorf("legend: steps must be >= 2, got %d", steps)
		}
		formatLegend(os.Stdout, opts.LegendField, opts.Ramp.Legend(steps))
		return nil
	},
}

func init() {
	legendCmd.Flags().String("field", "", "score field (default export.legend_field)")
	legendCmd.Flags().Int("steps", 5, "number of stops to print")
	rootCmd.AddCommand(legendCmd)
}

// formatLegend writes the stops for field as a table.
func formatLegend(out io.Writer, field string, stops []export.Stop) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\tCOLOR\n", field)
	for _, s := range stops {
		_, _ = fmt.Fprintf(w, "%.2f\t%s\n", s.Value, s.Color)
	}
	_ = w.Flush()
}
