package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/rectify"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputCSV   = "csv"
)

func writeResult(out io.Writer, format string, res *rectify.EnsembleResult, top int) error {
	switch format {
	case outputTable, "":
		formatResult(out, res, top)
		return nil
	case outputJSON:
		return writeIndentedJSON(out, res)
	case outputCSV:
		return writeResultCSV(out, res)
	default:
		return eris.Errorf("unknown output format %q (want table, json or csv)", format)
	}
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func bandColor(band string) *color.Color {
	switch band {
	case rectify.BandHigh:
		return color.New(color.FgGreen, color.Bold)
	case rectify.BandModerate:
		return color.New(color.FgYellow)
	case rectify.BandLow:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiBlack)
	}
}

// formatResult writes the best candidate, the top ranked candidates and the
// per-method breakdown to out.
func formatResult(out io.Writer, res *rectify.EnsembleResult, top int) {
	best := res.Best
	_, _ = fmt.Fprintf(out, "Estimate:    %s\n", res.Estimate.Format("2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(out, "Best:        %s (%s)\n", best.Instant.Format("2006-01-02 15:04 MST"), formatOffset(best.OffsetMinutes))
	_, _ = fmt.Fprintf(out, "Confidence:  %s\n", bandColor(res.Band).Sprintf("%d (%s)", res.Confidence, res.Band))
	_, _ = fmt.Fprintf(out, "Profile:     %s\n\n", res.Profile)

	methods := make([]string, 0, len(res.Methods))
	for _, m := range res.Methods {
		methods = append(methods, m.Method)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "RANK\tOFFSET\tTIME\tTOTAL"
	for _, m := range methods {
		header += "\t" + m
	}
	_, _ = fmt.Fprintln(w, header)

	if top <= 0 || top > len(res.Ranked) {
		top = len(res.Ranked)
	}
	for i, c := range res.Ranked[:top] {
		row := fmt.Sprintf("%d\t%s\t%s\t%.3f", i+1, formatOffset(c.OffsetMinutes), c.Instant.Format("15:04"), c.TotalWeightedScore)
		for _, m := range methods {
			row += "\t" + formatScore(c.Scores, m)
		}
		_, _ = fmt.Fprintln(w, row)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METHOD\tWEIGHT\tSCORE\tCONTRIBUTION\tSHARE")
	for _, m := range res.Methods {
		score := "-"
		if m.Score != nil {
			score = strconv.FormatFloat(*m.Score, 'f', 1, 64)
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%.3f\t%.0f%%\n", m.Method, m.Weight, score, m.Contribution, m.Share*100)
	}
	_ = w.Flush()

	if len(res.Excluded) > 0 {
		_, _ = fmt.Fprintf(out, "\n%d candidate(s) had no score from any weighted method.\n", len(res.Excluded))
	}
	if len(res.Failures) > 0 {
		_, _ = fmt.Fprintln(out, color.New(color.FgRed).Sprintf("\n%d evaluation(s) failed:", len(res.Failures)))
		for _, f := range res.Failures {
			_, _ = fmt.Fprintf(out, "  %s at %s: %s (%s)\n", f.Method, formatOffset(f.OffsetMinutes), f.Message, f.Class)
		}
	}
	if len(res.Recommendations) > 0 {
		_, _ = fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range res.Recommendations {
			_, _ = fmt.Fprintf(out, "  - %s\n", r)
		}
	}
}

// writeResultCSV writes one row per ranked candidate, methods as columns.
func writeResultCSV(out io.Writer, res *rectify.EnsembleResult) error {
	methods := make([]string, 0, len(res.Methods))
	for _, m := range res.Methods {
		methods = append(methods, m.Method)
	}
	sort.Strings(methods)

	w := csv.NewWriter(out)
	header := append([]string{"rank", "offset_minutes", "instant", "total_weighted_score"}, methods...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for i, c := range res.Ranked {
		row := []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.OffsetMinutes),
			c.Instant.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.FormatFloat(c.TotalWeightedScore, 'f', 6, 64),
		}
		for _, m := range methods {
			v, ok := c.Score(m)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}

func formatValidation(out io.Writer, res rectify.ValidationResult) {
	if res.IsValid {
		_, _ = fmt.Fprintln(out, color.New(color.FgGreen).Sprint("Configuration is valid."))
	} else {
		_, _ = fmt.Fprintln(out, color.New(color.FgRed, color.Bold).Sprintf("Configuration is invalid (%d error(s)):", len(res.Errors)))
		for _, v := range res.Errors {
			_, _ = fmt.Fprintf(out, "  [%s] %s\n", v.Rule, v)
		}
	}
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint("warning:"), w)
	}
	for _, s := range res.Suggestions {
		_, _ = fmt.Fprintf(out, "suggestion: %s\n", s)
	}
}

func formatOffset(minutes int) string {
	return fmt.Sprintf("%+d min", minutes)
}

func formatScore(scores map[string]float64, method string) string {
	v, ok := scores[method]
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// unionKeys returns the sorted keys present in any of ms.
func unionKeys(ms ...map[string]float64) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range ms {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
