package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/monitoring"
	"github.com/sells-group/rectify-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect rectification run history",
	Long:  "Commands for listing, viewing, and summarizing saved rectification runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		subject, _ := cmd.Flags().GetString("subject")
		profile, _ := cmd.Flags().GetString("profile")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status:  model.RunStatus(status),
			Subject: subject,
			Profile: profile,
			Limit:   limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		return writeIndentedJSON(cmd.OutOrStdout(), run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subject, _ := cmd.Flags().GetString("subject")
		runs, err := st.ListRuns(ctx, store.RunFilter{Subject: subject, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), computeRunStats(runs))
		return nil
	},
}

// -- runs health --

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check recent runs against the alert thresholds",
	Long:  "Summarizes runs inside the lookback window and reports every alert the monitoring thresholds raise. With --notify the alerts are also posted to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback, _ := cmd.Flags().GetInt("lookback")
		if lookback == 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "runs health")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("alerts delivered", zap.Int("triggered", len(alerts)), zap.Int("sent", sent))
		}

		formatHealth(cmd.OutOrStdout(), snap, alerts)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (complete, failed)")
	runsListCmd.Flags().String("subject", "", "filter by subject name")
	runsListCmd.Flags().String("profile", "", "filter by profile")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().String("subject", "", "restrict stats to one subject")

	runsHealthCmd.Flags().Int("lookback", 0, "window in hours (default from config)")
	runsHealthCmd.Flags().Bool("notify", false, "post alerts to the monitoring webhook")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsHealthCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total         int
	Complete      int
	Failed        int
	Configuration int
	Evidence      int
	Other         int
	AvgConfidence float64
	ByProfile     map[string]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), ByProfile: make(map[string]int)}

	var confSum float64
	for _, r := range runs {
		s.ByProfile[r.Profile]++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			confSum += r.Confidence
		case model.RunStatusFailed:
			s.Failed++
			if r.Error == nil {
				s.Other++
				continue
			}
			switch r.Error.Category {
			case model.ErrorCategoryConfiguration:
				s.Configuration++
			case model.ErrorCategoryEvidence:
				s.Evidence++
			default:
				s.Other++
			}
		default:
			s.Other++
		}
	}

	if s.Complete > 0 {
		s.AvgConfidence = confSum / float64(s.Complete)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tPROFILE\tSTATUS\tBEST\tCONFIDENCE\tERROR_CAT\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t------\t----\t----------\t---------\t-------")

	for _, r := range runs {
		best, conf := "-", "-"
		if r.BestOffset != nil {
			best = formatOffset(*r.BestOffset)
			conf = fmt.Sprintf("%.0f", r.Confidence)
		}

		errCat := ""
		if r.Error != nil {
			errCat = string(r.Error.Category)
		}

		subject := r.Subject
		if subject == "" {
			subject = "(unnamed)"
		}
		if len(subject) > 30 {
			subject = subject[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			subject,
			r.Profile,
			r.Status,
			best,
			conf,
			errCat,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Configuration:\t%d\n", s.Configuration)
	_, _ = fmt.Fprintf(w, "  Insufficient evidence:\t%d\n", s.Evidence)
	_, _ = fmt.Fprintf(w, "Other:\t%d\n", s.Other)
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.1f\n", s.AvgConfidence)
	}
	for _, p := range slices.Sorted(maps.Keys(s.ByProfile)) {
		_, _ = fmt.Fprintf(w, "Profile %s:\t%d\n", p, s.ByProfile[p])
	}
	_ = w.Flush()
}

// formatHealth writes a metrics snapshot and its alerts to w.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d\n", snap.RunsTotal)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.FailRate*100)
	if snap.RunsComplete > 0 {
		_, _ = fmt.Fprintf(w, "Avg confidence:\t%.1f\n", snap.AvgConfidence)
	}
	for _, c := range slices.Sorted(maps.Keys(snap.FailuresByCategory)) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", c, snap.FailuresByCategory[c])
	}
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, color.New(color.FgGreen).Sprint("No alerts."))
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprintf("[%s]", a.Severity), a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
