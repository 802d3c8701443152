package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

var (
	runBirthPath string
	runProfile   string
	runOverrides string
	runOutput    string
	runTop       int
	runSave      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rectify the birth time in a birth data file",
	Long:  "Scores every candidate time around the estimate in the birth data file with the reference methods and prints the fused ranking.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		birth, err := model.LoadBirthData(runBirthPath)
		if err != nil {
			return eris.Wrap(err, "load birth data")
		}

		rcfg, report, err := loadConfiguration(runProfile, runOverrides, birth)
		if err != nil {
			if len(report.Errors) > 0 {
				formatValidation(cmd.ErrOrStderr(), report)
			}
			return eris.Wrap(err, "rectify configuration")
		}
		for _, w := range report.Warnings {
			zap.L().Warn("configuration warning", zap.String("warning", w))
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}

		res, runErr := engine.Rectify(ctx, birth, rcfg)

		save := cfg.Engine.SaveRuns
		if cmd.Flags().Changed("save") {
			save = runSave
		}
		if save {
			if err := saveRun(ctx, birth, rcfg, res, runErr); err != nil {
				return err
			}
		}

		if runErr != nil {
			return eris.Wrap(runErr, "rectify run")
		}

		zap.L().Info("rectification complete",
			zap.String("subject", birth.Name),
			zap.Int("best_offset", res.Best.OffsetMinutes),
			zap.Int("confidence", res.Confidence),
			zap.String("band", res.Band),
			zap.Int("failures", len(res.Failures)),
		)

		return writeResult(cmd.OutOrStdout(), runOutput, res, runTop)
	},
}

// saveRun records the outcome of a run, failed or not.
func saveRun(ctx context.Context, birth *model.BirthData, rcfg rectify.Configuration, res *rectify.EnsembleResult, runErr error) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	run, err := rectify.NewRun(birth, rcfg, res, runErr)
	if err != nil {
		return err
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return eris.Wrap(err, "save run")
	}
	zap.L().Info("run saved", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runBirthPath, "birth", "", "birth data file, YAML or JSON (required)")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "preset profile: strict, balanced, relaxed or enhanced (default from config)")
	runCmd.Flags().StringVar(&runOverrides, "overrides", "", "YAML file with configuration overrides")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", outputTable, "output format: table, json or csv")
	runCmd.Flags().IntVar(&runTop, "top", 10, "ranked candidates to show in table output (0 for all)")
	runCmd.Flags().BoolVar(&runSave, "save", false, "save the run to the store (default from config)")
	_ = runCmd.MarkFlagRequired("birth")
	rootCmd.AddCommand(runCmd)
}
