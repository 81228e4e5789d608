package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/pipeline"
	"github.com/loghub/countyscore/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file.geojson>",
	Short: "Run the advisory QA checks over an existing output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]

		var reference []county.County
		if noRef, _ := cmd.Flags().GetBool("no-reference"); !noRef {
			if f := cmd.Flags(); f.Changed("counties") {
				cfg.Counties.Path, _ = f.GetString("counties")
			}
			p, err := pipeline.New(cfg, nil, nil)
			if err != nil {
				return err
			}
			res, err := p.LoadCounties(ctx, nil)
			if err != nil {
				return eris.Wrap(err, "load reference counties")
			}
			reference = res.Counties
		}

		report, err := validate.CheckFile(path, reference)
		if err != nil {
			return err
		}
		report.Log()

		if write, _ := cmd.Flags().GetBool("write-report"); write {
			if err := validate.WriteReport(validate.ReportPath(path), report); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	validateCmd.Flags().String("counties", "", "county boundary path or URL (default counties.path)")
	validateCmd.Flags().Bool("no-reference", false, "skip the missing-county check")
	validateCmd.Flags().Bool("write-report", false, "write <name>_validation.json next to the file")
	rootCmd.AddCommand(validateCmd)
}
