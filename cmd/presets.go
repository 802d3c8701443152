package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/rectify-cli/internal/rectify"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in configuration profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if format, _ := cmd.Flags().GetString("output"); format == outputJSON {
			presets := make(map[rectify.Profile]rectify.Configuration, len(rectify.Profiles))
			for _, p := range rectify.Profiles {
				presets[p] = rectify.MustPreset(p)
			}
			return writeIndentedJSON(out, presets)
		}
		formatPresets(out)
		return nil
	},
}

// formatPresets writes one row per profile to out.
func formatPresets(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROFILE\tRANGE\tSTEP\tCANDIDATES\tMIN_METHODS\tWEIGHT_SUM\tZERO_WEIGHTS\tHIGH/MOD/LOW\tREQUIRES")
	for _, p := range rectify.Profiles {
		c := rectify.MustPreset(p)
		requires := "-"
		if len(c.RequiredCapabilities) > 0 {
			requires = strings.Join(c.RequiredCapabilities, ",")
		}
		_, _ = fmt.Fprintf(w, "%s\t±%d\t%d\t%d\t%d\t%s\t%s\t%.0f/%.0f/%.0f\t%s\n",
			p,
			c.Algorithm.RangeMinutes,
			c.Algorithm.StepMinutes,
			c.Algorithm.CandidateCount(),
			c.Rules.MinActiveMethods,
			onOff(c.Rules.EnforceWeightSum, "enforced", "free"),
			onOff(c.Rules.AllowZeroWeights, "allowed", "rejected"),
			c.Thresholds.Confidence.High, c.Thresholds.Confidence.Moderate, c.Thresholds.Confidence.Low,
			requires,
		)
	}
	_ = w.Flush()
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func init() {
	presetsCmd.Flags().StringP("output", "o", outputTable, "output format: table or json")
	rootCmd.AddCommand(presetsCmd)
}
