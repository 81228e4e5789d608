package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/loghub/countyscore/internal/model"
	"github.com/loghub/countyscore/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted scoring runs",
	Long:  "Lists runs recorded by the configured store (store.driver postgres or sqlite).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("runs: no store configured (set store.driver)")
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		regionName, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Region: regionName,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
			formatRunStats(os.Stdout, computeRunStats(runs))
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsCmd.Flags().String("region", "", "filter by region")
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsCmd.Flags().Bool("stats", false, "print aggregate statistics instead of the list")
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total        int
	Complete     int
	Failed       int
	Running      int
	AvgDurSecs   float64
	AvgCounties  float64
	WithWarnings int
	TotalDropped int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var completed, counties int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.Duration()
			completed++
			if r.Stats != nil {
				counties += r.Stats.CountiesScored
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		if r.Stats != nil {
			s.TotalDropped += r.Stats.TilesDropped
			if r.Stats.ValidationStatus == "warning" {
				s.WithWarnings++
			}
		}
	}

	if completed > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(completed)
		s.AvgCounties = float64(counties) / float64(completed)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREGION\tSTATUS\tCOUNTIES\tVALIDATION\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t--------\t----------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.Duration().Round(time.Second).String()
		}

		counties, validation := "-", "-"
		if r.Stats != nil {
			counties = fmt.Sprint(r.Stats.CountiesScored)
			if r.Stats.ValidationStatus != "" {
				validation = r.Stats.ValidationStatus
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Region,
			r.Status,
			counties,
			validation,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "\t  error: %s\t\t\t\t\t\n", r.Error)
		}
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Validation warnings:\t%d\n", s.WithWarnings)
	_, _ = fmt.Fprintf(w, "Tiles dropped:\t%d\n", s.TotalDropped)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	if s.AvgCounties > 0 {
		_, _ = fmt.Fprintf(w, "Avg counties scored:\t%.1f\n", s.AvgCounties)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
