// Package rectify ranks candidate birth times by fusing weighted scores from
// independent evidence methods into a single result with a confidence value.
package rectify

import (
	"maps"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Method names of the reference evaluators.
const (
	MethodAscendantAlignment = "ascendant_alignment"
	MethodSignRelationship   = "sign_relationship"
	MethodBeneficMalefic     = "benefic_malefic"
	MethodEventCorrelation   = "event_correlation"
)

// Capability flags a preset may require.
const (
	CapabilityEventCorrelation       = "event_correlation"
	CapabilityHighPrecisionEphemeris = "high_precision_ephemeris"
)

// ConfidenceThresholds are the confidence bands; High > Moderate > Low.
type ConfidenceThresholds struct {
	High     float64 `json:"high" yaml:"high"`
	Moderate float64 `json:"moderate" yaml:"moderate"`
	Low      float64 `json:"low" yaml:"low"`
}

// Thresholds groups the confidence bands with the fusion parameters.
type Thresholds struct {
	Confidence ConfidenceThresholds `json:"confidence" yaml:"confidence"`

	// StrongMethodScore is the score a dominant method must exceed to earn
	// the alignment bonus.
	StrongMethodScore float64 `json:"strong_method_score" yaml:"strong_method_score"`

	// DominantWeight is the minimum weight of a dominant method.
	DominantWeight float64 `json:"dominant_weight" yaml:"dominant_weight"`

	// VarianceCeiling is the score variance at which the agreement part of
	// the alignment bonus reaches zero.
	VarianceCeiling float64 `json:"variance_ceiling" yaml:"variance_ceiling"`

	// AmbiguityMargin is the total-score gap below which the runner-up is
	// reported as a close alternative.
	AmbiguityMargin float64 `json:"ambiguity_margin" yaml:"ambiguity_margin"`
}

// AlgorithmSettings shape the candidate grid and the evaluation run.
type AlgorithmSettings struct {
	RangeMinutes      int           `json:"range_minutes" yaml:"range_minutes"`
	StepMinutes       int           `json:"step_minutes" yaml:"step_minutes"`
	MaxCandidates     int           `json:"max_candidates" yaml:"max_candidates"`
	Parallelism       int           `json:"parallelism" yaml:"parallelism"`
	EvaluationTimeout time.Duration `json:"evaluation_timeout" yaml:"evaluation_timeout"`
}

// CandidateCount is the number of offsets the grid produces, or 0 when the
// grid is degenerate.
func (a AlgorithmSettings) CandidateCount() int {
	if a.RangeMinutes <= 0 || a.StepMinutes <= 0 || a.StepMinutes > a.RangeMinutes {
		return 0
	}
	return 2*a.RangeMinutes/a.StepMinutes + 1
}

// ValidationRules govern which weight sets are acceptable.
type ValidationRules struct {
	MinActiveMethods   int     `json:"min_active_methods" yaml:"min_active_methods"`
	EnforceWeightSum   bool    `json:"enforce_weight_sum" yaml:"enforce_weight_sum"`
	AllowZeroWeights   bool    `json:"allow_zero_weights" yaml:"allow_zero_weights"`
	WeightSumTolerance float64 `json:"weight_sum_tolerance" yaml:"weight_sum_tolerance"`
}

// Configuration is the complete input to one run. Build it with
// CreateConfiguration; the engine clones it on entry and never mutates it.
type Configuration struct {
	Profile              Profile            `json:"profile" yaml:"profile"`
	Weights              map[string]float64 `json:"weights" yaml:"weights"`
	Thresholds           Thresholds         `json:"thresholds" yaml:"thresholds"`
	Algorithm            AlgorithmSettings  `json:"algorithm" yaml:"algorithm"`
	Rules                ValidationRules    `json:"rules" yaml:"rules"`
	RequiredCapabilities []string           `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`
	Capabilities         map[string]bool    `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	out := c
	out.Weights = maps.Clone(c.Weights)
	if out.Weights == nil {
		out.Weights = map[string]float64{}
	}
	out.Capabilities = maps.Clone(c.Capabilities)
	out.RequiredCapabilities = slices.Clone(c.RequiredCapabilities)
	return out
}

// ActiveMethods returns the methods with a positive weight, sorted.
func (c Configuration) ActiveMethods() []string {
	var active []string
	for _, m := range sortedKeys(c.Weights) {
		if c.Weights[m] > 0 {
			active = append(active, m)
		}
	}
	return active
}

// ActiveWeightSum sums the positive weights.
func (c Configuration) ActiveWeightSum() float64 {
	sum := 0.0
	for _, m := range c.ActiveMethods() {
		sum += c.Weights[m]
	}
	return sum
}

// WithWeights returns a copy using weights in place of the current set.
func (c Configuration) WithWeights(weights map[string]float64) Configuration {
	out := c.Clone()
	out.Weights = maps.Clone(weights)
	return out
}

// Overrides are caller adjustments merged over a preset. Nil fields keep
// the preset value.
type Overrides struct {
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`

	// ReplaceWeights drops the preset weights instead of merging into them.
	ReplaceWeights bool `json:"replace_weights,omitempty" yaml:"replace_weights,omitempty"`

	Thresholds   *ThresholdOverrides `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Algorithm    *AlgorithmOverrides `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Rules        *RuleOverrides      `json:"rules,omitempty" yaml:"rules,omitempty"`
	Capabilities map[string]bool     `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// ThresholdOverrides override Thresholds field by field.
type ThresholdOverrides struct {
	High              *float64 `json:"high,omitempty" yaml:"high,omitempty"`
	Moderate          *float64 `json:"moderate,omitempty" yaml:"moderate,omitempty"`
	Low               *float64 `json:"low,omitempty" yaml:"low,omitempty"`
	StrongMethodScore *float64 `json:"strong_method_score,omitempty" yaml:"strong_method_score,omitempty"`
	DominantWeight    *float64 `json:"dominant_weight,omitempty" yaml:"dominant_weight,omitempty"`
	VarianceCeiling   *float64 `json:"variance_ceiling,omitempty" yaml:"variance_ceiling,omitempty"`
	AmbiguityMargin   *float64 `json:"ambiguity_margin,omitempty" yaml:"ambiguity_margin,omitempty"`
}

// AlgorithmOverrides override AlgorithmSettings field by field.
type AlgorithmOverrides struct {
	RangeMinutes        *int `json:"range_minutes,omitempty" yaml:"range_minutes,omitempty"`
	StepMinutes         *int `json:"step_minutes,omitempty" yaml:"step_minutes,omitempty"`
	MaxCandidates       *int `json:"max_candidates,omitempty" yaml:"max_candidates,omitempty"`
	Parallelism         *int `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	EvaluationTimeoutMs *int `json:"evaluation_timeout_ms,omitempty" yaml:"evaluation_timeout_ms,omitempty"`
}

// RuleOverrides override ValidationRules field by field.
type RuleOverrides struct {
	MinActiveMethods   *int     `json:"min_active_methods,omitempty" yaml:"min_active_methods,omitempty"`
	EnforceWeightSum   *bool    `json:"enforce_weight_sum,omitempty" yaml:"enforce_weight_sum,omitempty"`
	AllowZeroWeights   *bool    `json:"allow_zero_weights,omitempty" yaml:"allow_zero_weights,omitempty"`
	WeightSumTolerance *float64 `json:"weight_sum_tolerance,omitempty" yaml:"weight_sum_tolerance,omitempty"`
}

// Apply merges o into a copy of base.
func (o *Overrides) Apply(base Configuration) Configuration {
	cfg := base.Clone()
	if o == nil {
		return cfg
	}

	if o.ReplaceWeights {
		cfg.Weights = make(map[string]float64, len(o.Weights))
	}
	for m, w := range o.Weights {
		cfg.Weights[m] = w
	}

	if t := o.Thresholds; t != nil {
		setIf(&cfg.Thresholds.Confidence.High, t.High)
		setIf(&cfg.Thresholds.Confidence.Moderate, t.Moderate)
		setIf(&cfg.Thresholds.Confidence.Low, t.Low)
		setIf(&cfg.Thresholds.StrongMethodScore, t.StrongMethodScore)
		setIf(&cfg.Thresholds.DominantWeight, t.DominantWeight)
		setIf(&cfg.Thresholds.VarianceCeiling, t.VarianceCeiling)
		setIf(&cfg.Thresholds.AmbiguityMargin, t.AmbiguityMargin)
	}

	if a := o.Algorithm; a != nil {
		setIf(&cfg.Algorithm.RangeMinutes, a.RangeMinutes)
		setIf(&cfg.Algorithm.StepMinutes, a.StepMinutes)
		setIf(&cfg.Algorithm.MaxCandidates, a.MaxCandidates)
		setIf(&cfg.Algorithm.Parallelism, a.Parallelism)
		if a.EvaluationTimeoutMs != nil {
			cfg.Algorithm.EvaluationTimeout = time.Duration(*a.EvaluationTimeoutMs) * time.Millisecond
		}
	}

	if r := o.Rules; r != nil {
		setIf(&cfg.Rules.MinActiveMethods, r.MinActiveMethods)
		setIf(&cfg.Rules.EnforceWeightSum, r.EnforceWeightSum)
		setIf(&cfg.Rules.AllowZeroWeights, r.AllowZeroWeights)
		setIf(&cfg.Rules.WeightSumTolerance, r.WeightSumTolerance)
	}

	if len(o.Capabilities) > 0 && cfg.Capabilities == nil {
		cfg.Capabilities = make(map[string]bool, len(o.Capabilities))
	}
	for c, on := range o.Capabilities {
		cfg.Capabilities[c] = on
	}
	return cfg
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// CreateConfiguration selects the preset for profile (balanced when empty),
// merges overrides and validates the result. An invalid result is returned
// as a *ConfigurationError alongside the validation report.
func CreateConfiguration(overrides *Overrides, profile Profile) (Configuration, ValidationResult, error) {
	if profile == "" {
		profile = ProfileBalanced
	}
	base, err := Preset(profile)
	if err != nil {
		return Configuration{}, ValidationResult{}, err
	}

	cfg := overrides.Apply(base)
	res := ValidateConfiguration(cfg)
	if err := res.Err(cfg.Profile); err != nil {
		return cfg, res, err
	}
	return cfg, res, nil
}

// LoadOverrides reads Overrides from a YAML (or JSON) file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rectify: read overrides %s", path)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, eris.Wrapf(err, "rectify: parse overrides %s", path)
	}
	return &o, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
