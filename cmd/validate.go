package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rectify-cli/internal/model"
)

var (
	validateProfile   string
	validateOverrides string
	validateBirthPath string
	validateOutput    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a profile and overrides without running",
	Long:  "Resolves the profile, merges the overrides file and reports every violated rule, warning and suggestion. Exits non-zero when the configuration is invalid.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var birth *model.BirthData
		if validateBirthPath != "" {
			b, err := model.LoadBirthData(validateBirthPath)
			if err != nil {
				return eris.Wrap(err, "load birth data")
			}
			birth = b
		}

		rcfg, report, err := loadConfiguration(validateProfile, validateOverrides, birth)
		if err != nil && len(report.Errors) == 0 {
			// unknown profile or unreadable overrides
			return err
		}

		out := cmd.OutOrStdout()
		if validateOutput == outputJSON {
			if jerr := writeIndentedJSON(out, map[string]any{"configuration": rcfg, "validation": report}); jerr != nil {
				return jerr
			}
		} else {
			formatValidation(out, report)
		}
		if err != nil {
			return eris.Wrap(err, "validate")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateProfile, "profile", "", "preset profile (default from config)")
	validateCmd.Flags().StringVar(&validateOverrides, "overrides", "", "YAML file with configuration overrides")
	validateCmd.Flags().StringVar(&validateBirthPath, "birth", "", "birth data file used to detect available capabilities")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", outputTable, "output format: table or json")
	rootCmd.AddCommand(validateCmd)
}
