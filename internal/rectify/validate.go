package rectify

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Advisory bounds for the candidate grid. Values outside produce warnings.
const (
	minAdvisedRange = 5
	maxAdvisedRange = 720
	minAdvisedStep  = 1
	maxAdvisedStep  = 60

	// MaxWeightSumTolerance is the loosest allowed rules.weight_sum_tolerance.
	// Tighter values are accepted; looser ones are a violation.
	MaxWeightSumTolerance = 0.01
)

// ValidationResult reports every problem found in a Configuration. Errors
// make it invalid; warnings and suggestions never do.
type ValidationResult struct {
	IsValid     bool        `json:"is_valid"`
	Errors      []Violation `json:"errors"`
	Warnings    []string    `json:"warnings"`
	Suggestions []string    `json:"suggestions"`

	degenerate *DegenerateCandidateSetError
}

// Err returns a *ConfigurationError for an invalid result, or nil.
func (r ValidationResult) Err(profile Profile) error {
	if r.IsValid {
		return nil
	}
	ce := &ConfigurationError{Profile: profile, Violations: r.Errors}
	for _, v := range r.Errors {
		if v.Rule == RuleDegenerateSet {
			ce.Degenerate = r.degenerate
			break
		}
	}
	return ce
}

func (r *ValidationResult) fail(rule, field, format string, args ...any) {
	r.Errors = append(r.Errors, Violation{Rule: rule, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) suggest(format string, args ...any) {
	r.Suggestions = append(r.Suggestions, fmt.Sprintf(format, args...))
}

// ValidateConfiguration checks cfg for internal consistency. It never
// mutates cfg. Findings are reported in a stable order.
func ValidateConfiguration(cfg Configuration) ValidationResult {
	res := ValidationResult{Errors: []Violation{}, Warnings: []string{}, Suggestions: []string{}}

	validateWeights(cfg, &res)
	validateThresholds(cfg.Thresholds, &res)
	validateAlgorithm(cfg.Algorithm, &res)
	validateCapabilities(cfg, &res)

	res.IsValid = len(res.Errors) == 0
	return res
}

func validateWeights(cfg Configuration, res *ValidationResult) {
	rules := cfg.Rules

	for _, m := range sortedKeys(cfg.Weights) {
		w := cfg.Weights[m]
		field := "weights." + m
		switch {
		case math.IsNaN(w) || w < 0 || w > 1:
			res.fail(RuleWeightRange, field, "weight %v outside [0, 1]", w)
		case w == 0 && !rules.AllowZeroWeights:
			res.fail(RuleZeroWeight, field, "zero weight not allowed (rules.allow_zero_weights=false)")
			res.suggest("remove %s from weights or set rules.allow_zero_weights", m)
		}
	}

	if rules.MinActiveMethods < 1 {
		res.fail(RuleMinActiveMethods, "rules.min_active_methods", "must be >= 1, got %d", rules.MinActiveMethods)
	}

	active := cfg.ActiveMethods()
	if rules.MinActiveMethods >= 1 && len(active) < rules.MinActiveMethods {
		res.fail(RuleMinActiveMethods, "weights",
			"%d active method(s) (%s), at least %d required", len(active), joinOrNone(active), rules.MinActiveMethods)
		res.suggest("give at least %d methods a positive weight or lower rules.min_active_methods", rules.MinActiveMethods)
	}

	if !rules.EnforceWeightSum || len(active) == 0 {
		return
	}
	tol := rules.WeightSumTolerance
	switch {
	case tol <= 0:
		tol = MaxWeightSumTolerance
	case tol > MaxWeightSumTolerance:
		res.fail(RuleWeightSum, "rules.weight_sum_tolerance", "must be <= %.2f, got %.4f", MaxWeightSumTolerance, tol)
		tol = MaxWeightSumTolerance
	}
	sum := cfg.ActiveWeightSum()
	if math.Abs(sum-1) > tol {
		res.fail(RuleWeightSum, "weights",
			"active weights sum to %.4f, want 1.0 ± %.2f (%s)", sum, tol, formatWeights(cfg.Weights, active))
		normalized := make(map[string]float64, len(active))
		for _, m := range active {
			normalized[m] = cfg.Weights[m] / sum
		}
		res.suggest("normalize weights to %s", formatWeights(normalized, active))
	}
}

func validateThresholds(t Thresholds, res *ValidationResult) {
	bands := []struct {
		field string
		v     float64
	}{
		{"thresholds.confidence.high", t.Confidence.High},
		{"thresholds.confidence.moderate", t.Confidence.Moderate},
		{"thresholds.confidence.low", t.Confidence.Low},
	}
	for _, b := range bands {
		if math.IsNaN(b.v) || b.v < 0 || b.v > 100 {
			res.fail(RuleThresholdRange, b.field, "%v outside [0, 100]", b.v)
		}
	}
	c := t.Confidence
	if !(c.High > c.Moderate && c.Moderate > c.Low) {
		res.fail(RuleThresholdOrder, "thresholds.confidence",
			"want high > moderate > low, got high=%v moderate=%v low=%v", c.High, c.Moderate, c.Low)
	}

	if math.IsNaN(t.StrongMethodScore) || t.StrongMethodScore < 0 || t.StrongMethodScore >= 100 {
		res.fail(RuleInvalidFusionParam, "thresholds.strong_method_score", "%v outside [0, 100)", t.StrongMethodScore)
	}
	if math.IsNaN(t.DominantWeight) || t.DominantWeight < 0 || t.DominantWeight > 1 {
		res.fail(RuleInvalidFusionParam, "thresholds.dominant_weight", "%v outside [0, 1]", t.DominantWeight)
	}
	if !(t.VarianceCeiling > 0) {
		res.fail(RuleInvalidFusionParam, "thresholds.variance_ceiling", "must be > 0, got %v", t.VarianceCeiling)
	}
	if math.IsNaN(t.AmbiguityMargin) || t.AmbiguityMargin < 0 {
		res.fail(RuleInvalidFusionParam, "thresholds.ambiguity_margin", "must be >= 0, got %v", t.AmbiguityMargin)
	}
}

func validateAlgorithm(a AlgorithmSettings, res *ValidationResult) {
	if _, err := GenerateOffsets(a.RangeMinutes, a.StepMinutes); err != nil {
		var de *DegenerateCandidateSetError
		errors.As(err, &de)
		res.fail(RuleDegenerateSet, "algorithm", "range=%d step=%d: %s", a.RangeMinutes, a.StepMinutes, de.Reason)
		res.degenerate = de
		return
	}

	if a.RangeMinutes < minAdvisedRange || a.RangeMinutes > maxAdvisedRange {
		res.warn("algorithm.range_minutes=%d outside advised [%d, %d]", a.RangeMinutes, minAdvisedRange, maxAdvisedRange)
	}
	if a.StepMinutes < minAdvisedStep || a.StepMinutes > maxAdvisedStep {
		res.warn("algorithm.step_minutes=%d outside advised [%d, %d]", a.StepMinutes, minAdvisedStep, maxAdvisedStep)
	}
	if a.RangeMinutes%a.StepMinutes != 0 {
		res.warn("algorithm.range_minutes=%d is not a multiple of step_minutes=%d; offset 0 is not a candidate", a.RangeMinutes, a.StepMinutes)
		res.suggest("use a step that divides %d (e.g. %d) so the estimate itself is scored", a.RangeMinutes, largestDivisorAtMost(a.RangeMinutes, a.StepMinutes))
	}
	n := a.CandidateCount()
	switch {
	case a.MaxCandidates <= 0:
		res.warn("algorithm.max_candidates=%d is not positive; candidate count is unbounded", a.MaxCandidates)
	case n > a.MaxCandidates:
		res.warn("grid yields %d candidates, above algorithm.max_candidates=%d", n, a.MaxCandidates)
		res.suggest("raise step_minutes to at least %d to stay within %d candidates", minStepFor(a.RangeMinutes, a.MaxCandidates), a.MaxCandidates)
	}
	if a.Parallelism < 0 {
		res.warn("algorithm.parallelism=%d is negative; evaluating sequentially", a.Parallelism)
	}
	if a.EvaluationTimeout < 0 {
		res.warn("algorithm.evaluation_timeout=%s is negative; no per-evaluation deadline applies", a.EvaluationTimeout)
	}
}

func validateCapabilities(cfg Configuration, res *ValidationResult) {
	var missing []string
	for _, c := range cfg.RequiredCapabilities {
		if !cfg.Capabilities[c] {
			res.fail(RuleMissingCapability, "capabilities."+c, "required by profile %s but not enabled", cfg.Profile)
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		res.suggest("enable %s or fall back to the %s profile", strings.Join(missing, ", "), ProfileBalanced)
	}
}

func formatWeights(w map[string]float64, names []string) string {
	parts := make([]string, len(names))
	for i, m := range names {
		parts[i] = fmt.Sprintf("%s=%.3f", m, w[m])
	}
	return strings.Join(parts, ", ")
}

func largestDivisorAtMost(n, limit int) int {
	for d := limit; d > 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}

func minStepFor(rangeMinutes, maxCandidates int) int {
	if maxCandidates <= 1 {
		return rangeMinutes
	}
	step := 1
	for 2*rangeMinutes/step+1 > maxCandidates {
		step++
	}
	return step
}
