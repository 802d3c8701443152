package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
	"github.com/sells-group/rectify-cli/internal/store"
)

var (
	optimizeScores      map[string]string
	optimizeRunID       string
	optimizeConstraints string
	optimizeMinWeight   float64
	optimizeMaxWeight   float64
	optimizeOutput      string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Propose method weights from per-method scores",
	Long: "Derives method weights from the efficacy table, restricted to methods with a nonzero score. " +
		"Scores come from --score method=value flags or from the best candidate of a saved run (--run).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scores, err := parseScores(optimizeScores)
		if err != nil {
			return err
		}
		if optimizeRunID != "" {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			fromRun, err := runBestScores(ctx, st, optimizeRunID)
			if err != nil {
				return err
			}
			for m, v := range fromRun {
				if _, set := scores[m]; !set {
					scores[m] = v
				}
			}
		}
		if len(scores) == 0 {
			return eris.New("optimize: give --score method=value or --run <run-id>")
		}

		constraints, err := loadConstraints(optimizeConstraints)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("min-weight") {
			constraints.MinWeight = optimizeMinWeight
		}
		if cmd.Flags().Changed("max-weight") {
			constraints.MaxWeight = optimizeMaxWeight
		}

		res, err := rectify.OptimizeWeights(scores, constraints)
		if err != nil {
			return eris.Wrap(err, "optimize")
		}

		if optimizeOutput == outputJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), res)
		}
		formatOptimization(cmd.OutOrStdout(), res)
		return nil
	},
}

func parseScores(raw map[string]string) (map[string]float64, error) {
	scores := make(map[string]float64, len(raw))
	for m, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "optimize: score for %s", m)
		}
		scores[m] = f
	}
	return scores, nil
}

// runBestScores returns the per-method scores at a saved run's best offset.
func runBestScores(ctx context.Context, st store.Store, id string) (map[string]float64, error) {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "optimize: load run")
	}
	if run.Status != model.RunStatusComplete || run.BestOffset == nil {
		return nil, eris.Errorf("optimize: run %s has no best candidate (status %s)", id, run.Status)
	}
	scores := make(map[string]float64)
	for _, s := range run.Scores {
		if s.OffsetMinutes == *run.BestOffset {
			scores[s.Method] = s.Score
		}
	}
	return scores, nil
}

func loadConstraints(path string) (rectify.OptimizationConstraints, error) {
	var c rectify.OptimizationConstraints
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, eris.Wrapf(err, "optimize: read constraints %s", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, eris.Wrapf(err, "optimize: parse constraints %s", path)
	}
	return c, nil
}

func formatOptimization(out io.Writer, res rectify.OptimizationResult) {
	if !res.Applied {
		_, _ = fmt.Fprintf(out, "Defaults kept: %s\n", res.Reason)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METHOD\tDEFAULT\tPROPOSED")
	for _, m := range unionKeys(res.DefaultWeights, res.Weights) {
		proposed := "-"
		if v, ok := res.Weights[m]; ok {
			proposed = strconv.FormatFloat(v, 'f', 3, 64)
		}
		def := "-"
		if v, ok := res.DefaultWeights[m]; ok {
			def = strconv.FormatFloat(v, 'f', 3, 64)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", m, def, proposed)
	}
	_ = w.Flush()
	if res.Applied {
		_, _ = fmt.Fprintf(out, "\nConfidence change: %+.0f\nWeight consistency: %.3f\n", res.Improvement, res.Consistency)
	}
}

func init() {
	optimizeCmd.Flags().StringToStringVar(&optimizeScores, "score", nil, "method score, e.g. --score ascendant_alignment=82 (repeatable)")
	optimizeCmd.Flags().StringVar(&optimizeRunID, "run", "", "take scores from the best candidate of a saved run")
	optimizeCmd.Flags().StringVar(&optimizeConstraints, "constraints", "", "YAML file with optimization constraints")
	optimizeCmd.Flags().Float64Var(&optimizeMinWeight, "min-weight", 0, "lower bound on any raw weight")
	optimizeCmd.Flags().Float64Var(&optimizeMaxWeight, "max-weight", 0, "upper bound on any raw weight (0 for none)")
	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", outputTable, "output format: table or json")
	rootCmd.AddCommand(optimizeCmd)
}
