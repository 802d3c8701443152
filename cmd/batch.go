package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/batch"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/store"
)

var (
	batchInput       string
	batchProfile     string
	batchOverrides   string
	batchConcurrency int
	batchEncoding    string
	batchSheet       string
	batchSave        bool
	batchOutput      string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rectify every subject in a CSV or XLSX file",
	Long: "Reads one subject per row (columns name, estimate, latitude, longitude and timezone), " +
		"rectifies each with the same profile and overrides and prints one line per subject. " +
		"Rows that fail are reported and do not stop the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		rows, err := batch.ReadFile(ctx, batchInput, batch.SourceOptions{Encoding: batchEncoding, Sheet: batchSheet})
		if err != nil {
			return err
		}
		records, err := batch.ParseRecords(rows)
		if err != nil {
			return err
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}

		opts := batch.Options{Concurrency: batchConcurrency}

		save := cfg.Engine.SaveRuns
		if cmd.Flags().Changed("save") {
			save = batchSave
		}
		if save {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			opts.Observe = saveObserver(st)
		}

		configFor := func(birth *model.BirthData) (rectify.Configuration, error) {
			c, _, err := loadConfiguration(batchProfile, batchOverrides, birth)
			return c, err
		}

		outcomes, err := batch.Run(ctx, engine, records, configFor, opts)
		if err != nil {
			return err
		}

		switch batchOutput {
		case outputTable, "":
			formatBatch(cmd.OutOrStdout(), outcomes)
			return nil
		case outputJSON:
			return writeIndentedJSON(cmd.OutOrStdout(), outcomes)
		case outputCSV:
			return batch.WriteCSV(cmd.OutOrStdout(), outcomes)
		default:
			return eris.Errorf("unknown output format %q (want table, json or csv)", batchOutput)
		}
	},
}

// saveObserver stores every attempted run. Save failures are logged so one
// bad write does not fail the batch.
func saveObserver(st store.Store) batch.Observer {
	return func(ctx context.Context, birth *model.BirthData, rcfg rectify.Configuration, res *rectify.EnsembleResult, runErr error) {
		run, err := rectify.NewRun(birth, rcfg, res, runErr)
		if err == nil {
			err = st.SaveRun(ctx, run)
		}
		if err != nil {
			zap.L().Error("batch: save run failed", zap.String("subject", birth.Name), zap.Error(err))
		}
	}
}

// formatBatch writes one line per outcome followed by a summary.
func formatBatch(out io.Writer, outcomes []batch.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LINE\tSUBJECT\tBEST\tOFFSET\tCONFIDENCE\tRESULT")

	var failed int
	for _, o := range outcomes {
		name := o.Name
		if name == "" {
			name = "(unnamed)"
		}
		if o.Failed() {
			failed++
			_, _ = fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t%s\n", o.Line, name, color.New(color.FgRed).Sprintf("%s: %s", o.Category, o.Error))
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\tok\n",
			o.Line,
			name,
			o.BestTime.Format("2006-01-02 15:04 MST"),
			formatOffset(*o.BestOffset),
			bandColor(o.Band).Sprintf("%d (%s)", o.Confidence, o.Band),
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d subject(s): %d rectified, %d failed\n", len(outcomes), len(outcomes)-failed, failed)
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "subjects file, .csv, .tsv or .xlsx (required)")
	batchCmd.Flags().StringVar(&batchProfile, "profile", "", "preset profile for every subject (default from config)")
	batchCmd.Flags().StringVar(&batchOverrides, "overrides", "", "YAML file with configuration overrides")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", batch.DefaultConcurrency, "subjects rectified in parallel")
	batchCmd.Flags().StringVar(&batchEncoding, "encoding", "", "charset of a CSV input, e.g. windows-1252 (default UTF-8)")
	batchCmd.Flags().StringVar(&batchSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "save every run to the store (default from config)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", outputTable, "output format: table, json or csv")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
