package rectify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func rules(res ValidationResult) []string {
	out := make([]string, len(res.Errors))
	for i, v := range res.Errors {
		out[i] = v.Rule
	}
	return out
}

func TestPresets_Valid(t *testing.T) {
	for _, p := range []Profile{ProfileStrict, ProfileBalanced, ProfileRelaxed} {
		t.Run(string(p), func(t *testing.T) {
			cfg, err := Preset(p)
			require.NoError(t, err)
			res := ValidateConfiguration(cfg)
			assert.True(t, res.IsValid, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
			assert.Equal(t, p, cfg.Profile)
		})
	}
}

func TestPresets_GridDefaults(t *testing.T) {
	tests := []struct {
		profile   Profile
		rng, step int
		count     int
	}{
		{ProfileStrict, 60, 5, 25},
		{ProfileBalanced, 120, 5, 49},
		{ProfileRelaxed, 120, 10, 25},
		{ProfileEnhanced, 60, 10, 13},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			cfg := MustPreset(tt.profile)
			assert.Equal(t, tt.rng, cfg.Algorithm.RangeMinutes)
			assert.Equal(t, tt.step, cfg.Algorithm.StepMinutes)
			assert.Equal(t, tt.count, cfg.Algorithm.CandidateCount())
		})
	}
}

func TestPreset_ReturnsFreshCopy(t *testing.T) {
	a := MustPreset(ProfileBalanced)
	a.Weights[MethodAscendantAlignment] = 0.99
	b := MustPreset(ProfileBalanced)
	assert.InDelta(t, 0.35, b.Weights[MethodAscendantAlignment], 1e-9)
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("lenient")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.HasRule(RuleUnknownProfile))
	assert.Contains(t, err.Error(), `"lenient"`)
}

func TestEnhancedRequiresCapabilities(t *testing.T) {
	cfg := MustPreset(ProfileEnhanced)
	res := ValidateConfiguration(cfg)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{RuleMissingCapability, RuleMissingCapability}, rules(res))
	assert.Equal(t, "capabilities.event_correlation", res.Errors[0].Field)
	require.NotEmpty(t, res.Suggestions)
	assert.Contains(t, res.Suggestions[len(res.Suggestions)-1], "balanced")

	cfg, _, err := CreateConfiguration(&Overrides{Capabilities: map[string]bool{
		CapabilityEventCorrelation: true,
	}}, ProfileEnhanced)
	require.Error(t, err)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.Violations, 1)
	assert.Equal(t, "capabilities.high_precision_ephemeris", ce.Violations[0].Field)

	cfg, res, err = CreateConfiguration(&Overrides{Capabilities: map[string]bool{
		CapabilityEventCorrelation:       true,
		CapabilityHighPrecisionEphemeris: true,
	}}, ProfileEnhanced)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, ProfileEnhanced, cfg.Profile)
}

func TestValidate_WeightSumRejected(t *testing.T) {
	_, res, err := CreateConfiguration(&Overrides{
		Weights:        map[string]float64{"A": 0.5, "B": 0.6},
		ReplaceWeights: true,
	}, ProfileBalanced)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{RuleWeightSum}, rules(res))
	assert.Contains(t, res.Errors[0].Message, "1.1000")
	assert.Contains(t, res.Errors[0].Message, "A=0.500, B=0.600")
	assert.Contains(t, res.Suggestions, "normalize weights to A=0.455, B=0.545")
	assert.Contains(t, err.Error(), "weight")
}

func TestValidate_WeightSumToleranceCapped(t *testing.T) {
	loose := 0.5
	_, res, err := CreateConfiguration(&Overrides{
		Weights:        map[string]float64{"A": 0.5, "B": 0.6},
		ReplaceWeights: true,
		Rules:          &RuleOverrides{WeightSumTolerance: &loose},
	}, ProfileBalanced)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{RuleWeightSum, RuleWeightSum}, rules(res))
	assert.Equal(t, "rules.weight_sum_tolerance", res.Errors[0].Field)
	assert.Contains(t, res.Errors[1].Message, "1.1000")
}

func TestValidate_WeightSumToleranceTighter(t *testing.T) {
	tight := 0.001
	cfg := MustPreset(ProfileBalanced).WithWeights(map[string]float64{"A": 0.5, "B": 0.505})
	cfg.Rules.WeightSumTolerance = tight

	res := ValidateConfiguration(cfg)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{RuleWeightSum}, rules(res))
	assert.Equal(t, "weights", res.Errors[0].Field)
}

func TestValidate_WeightSumWithinTolerance(t *testing.T) {
	cfg := MustPreset(ProfileBalanced).WithWeights(map[string]float64{"A": 0.5, "B": 0.505})
	res := ValidateConfiguration(cfg)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.InDelta(t, 1.005, cfg.ActiveWeightSum(), 1e-9)
}

func TestValidate_ValidConfigsHaveUnitWeightSum(t *testing.T) {
	weightSets := []map[string]float64{
		DefaultWeights(),
		{"a": 0.5, "b": 0.5},
		{"a": 0.333, "b": 0.333, "c": 0.334},
		{"a": 0.7, "b": 0.3, "c": 0},
		{"a": 0.5, "b": 0.6},
		{"a": 0.2, "b": 0.2},
		{"a": 0.995, "b": 0.014},
	}
	for _, w := range weightSets {
		cfg := MustPreset(ProfileBalanced).WithWeights(w)
		if ValidateConfiguration(cfg).IsValid {
			assert.InDelta(t, 1.0, cfg.ActiveWeightSum(), 0.01, "weights %v", w)
		}
	}
}

func TestValidate_WeightSumNotEnforced(t *testing.T) {
	cfg := MustPreset(ProfileRelaxed).WithWeights(map[string]float64{"A": 0.5, "B": 0.6})
	res := ValidateConfiguration(cfg)
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
		want   []string
	}{
		{
			name:   "weight above one",
			mutate: func(c *Configuration) { c.Weights = map[string]float64{"a": 1.2, "b": 0.3} },
			want:   []string{RuleWeightRange, RuleWeightSum},
		},
		{
			name:   "negative weight",
			mutate: func(c *Configuration) { c.Weights = map[string]float64{"a": -0.1, "b": 0.5, "c": 0.5} },
			want:   []string{RuleWeightRange},
		},
		{
			name: "zero weight forbidden",
			mutate: func(c *Configuration) {
				c.Rules.AllowZeroWeights = false
				c.Weights = map[string]float64{"a": 0.5, "b": 0.5, "c": 0}
			},
			want: []string{RuleZeroWeight},
		},
		{
			name: "too few active methods",
			mutate: func(c *Configuration) {
				c.Rules.MinActiveMethods = 3
				c.Weights = map[string]float64{"a": 0.5, "b": 0.5, "c": 0}
			},
			want: []string{RuleMinActiveMethods},
		},
		{
			name:   "min active below one",
			mutate: func(c *Configuration) { c.Rules.MinActiveMethods = 0 },
			want:   []string{RuleMinActiveMethods},
		},
		{
			name:   "thresholds equal",
			mutate: func(c *Configuration) { c.Thresholds.Confidence = ConfidenceThresholds{High: 70, Moderate: 70, Low: 50} },
			want:   []string{RuleThresholdOrder},
		},
		{
			name:   "thresholds inverted",
			mutate: func(c *Configuration) { c.Thresholds.Confidence = ConfidenceThresholds{High: 40, Moderate: 60, Low: 80} },
			want:   []string{RuleThresholdOrder},
		},
		{
			name:   "threshold above 100",
			mutate: func(c *Configuration) { c.Thresholds.Confidence.High = 120 },
			want:   []string{RuleThresholdRange},
		},
		{
			name:   "variance ceiling zero",
			mutate: func(c *Configuration) { c.Thresholds.VarianceCeiling = 0 },
			want:   []string{RuleInvalidFusionParam},
		},
		{
			name:   "strong score at 100",
			mutate: func(c *Configuration) { c.Thresholds.StrongMethodScore = 100 },
			want:   []string{RuleInvalidFusionParam},
		},
		{
			name:   "step exceeds range",
			mutate: func(c *Configuration) { c.Algorithm.RangeMinutes, c.Algorithm.StepMinutes = 5, 10 },
			want:   []string{RuleDegenerateSet},
		},
		{
			name:   "missing capability",
			mutate: func(c *Configuration) { c.RequiredCapabilities = []string{"event_correlation"} },
			want:   []string{RuleMissingCapability},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MustPreset(ProfileBalanced)
			tt.mutate(&cfg)
			res := ValidateConfiguration(cfg)
			assert.False(t, res.IsValid)
			assert.Equal(t, tt.want, rules(res))
			require.Error(t, res.Err(cfg.Profile))
		})
	}
}

func TestValidate_DegenerateIsReachable(t *testing.T) {
	cfg := MustPreset(ProfileBalanced)
	cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes = 0, 5
	err := ValidateConfiguration(cfg).Err(cfg.Profile)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrDegenerateCandidates)

	var de *DegenerateCandidateSetError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.RangeMinutes)
	assert.Equal(t, 5, de.StepMinutes)
}

func TestValidate_NonDegenerateErrorDoesNotUnwrap(t *testing.T) {
	cfg := MustPreset(ProfileBalanced)
	cfg.Thresholds.Confidence.High = 10
	err := ValidateConfiguration(cfg).Err(cfg.Profile)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDegenerateCandidates)
}

func TestValidate_AlgorithmWarningsOnly(t *testing.T) {
	tests := []struct {
		name       string
		algo       AlgorithmSettings
		wantWarn   []string
		suggestion string
	}{
		{
			name:     "huge window",
			algo:     AlgorithmSettings{RangeMinutes: 900, StepMinutes: 5, MaxCandidates: 100},
			wantWarn: []string{"range_minutes=900 outside advised", "grid yields 361 candidates"},
			suggestion: "raise step_minutes to at least 19",
		},
		{
			name:     "coarse step",
			algo:     AlgorithmSettings{RangeMinutes: 240, StepMinutes: 120, MaxCandidates: 100},
			wantWarn: []string{"step_minutes=120 outside advised"},
		},
		{
			name:       "estimate skipped",
			algo:       AlgorithmSettings{RangeMinutes: 60, StepMinutes: 7, MaxCandidates: 100},
			wantWarn:   []string{"offset 0 is not a candidate"},
			suggestion: "(e.g. 6)",
		},
		{
			name:     "unbounded candidates",
			algo:     AlgorithmSettings{RangeMinutes: 60, StepMinutes: 5},
			wantWarn: []string{"max_candidates=0 is not positive"},
		},
		{
			name:     "negative parallelism and timeout",
			algo:     AlgorithmSettings{RangeMinutes: 60, StepMinutes: 5, MaxCandidates: 100, Parallelism: -1, EvaluationTimeout: -time.Second},
			wantWarn: []string{"parallelism=-1", "evaluation_timeout=-1s"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MustPreset(ProfileBalanced)
			cfg.Algorithm = tt.algo
			res := ValidateConfiguration(cfg)
			assert.True(t, res.IsValid, "errors: %v", res.Errors)
			require.Len(t, res.Warnings, len(tt.wantWarn))
			for i, w := range tt.wantWarn {
				assert.Contains(t, res.Warnings[i], w)
			}
			if tt.suggestion != "" {
				require.NotEmpty(t, res.Suggestions)
				assert.Contains(t, res.Suggestions[0], tt.suggestion)
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := MustPreset(ProfileBalanced).WithWeights(map[string]float64{"A": 0.5, "B": 0.6})
	_ = ValidateConfiguration(cfg)
	assert.Equal(t, map[string]float64{"A": 0.5, "B": 0.6}, cfg.Weights)
}

func TestCreateConfiguration_Defaults(t *testing.T) {
	cfg, res, err := CreateConfiguration(nil, "")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, ProfileBalanced, cfg.Profile)
	assert.Equal(t, DefaultWeights(), cfg.Weights)
}

func TestCreateConfiguration_DeepMerge(t *testing.T) {
	o := &Overrides{
		Weights:    map[string]float64{MethodAscendantAlignment: 0.45, MethodEventCorrelation: 0.10},
		Thresholds: &ThresholdOverrides{High: ptr(90.0)},
		Algorithm:  &AlgorithmOverrides{RangeMinutes: ptr(60), EvaluationTimeoutMs: ptr(250)},
		Rules:      &RuleOverrides{MinActiveMethods: ptr(3)},
	}
	cfg, res, err := CreateConfiguration(o, ProfileBalanced)
	require.NoError(t, err, "errors: %v", res.Errors)

	assert.InDelta(t, 0.45, cfg.Weights[MethodAscendantAlignment], 1e-9)
	assert.InDelta(t, 0.25, cfg.Weights[MethodSignRelationship], 1e-9)
	assert.InDelta(t, 0.20, cfg.Weights[MethodBeneficMalefic], 1e-9)
	assert.InDelta(t, 0.10, cfg.Weights[MethodEventCorrelation], 1e-9)

	assert.InDelta(t, 90, cfg.Thresholds.Confidence.High, 1e-9)
	assert.InDelta(t, 65, cfg.Thresholds.Confidence.Moderate, 1e-9)
	assert.Equal(t, 60, cfg.Algorithm.RangeMinutes)
	assert.Equal(t, 5, cfg.Algorithm.StepMinutes)
	assert.Equal(t, 250*time.Millisecond, cfg.Algorithm.EvaluationTimeout)
	assert.Equal(t, 3, cfg.Rules.MinActiveMethods)
	assert.True(t, cfg.Rules.EnforceWeightSum)
}

func TestOverrides_ApplyLeavesBaseUntouched(t *testing.T) {
	base := MustPreset(ProfileStrict)
	o := &Overrides{
		Weights:      map[string]float64{"extra": 0.1},
		Capabilities: map[string]bool{"x": true},
	}
	merged := o.Apply(base)
	assert.Len(t, merged.Weights, 5)
	assert.Len(t, base.Weights, 4)
	assert.Nil(t, base.Capabilities)
	assert.True(t, merged.Capabilities["x"])
}

func TestConfiguration_Clone(t *testing.T) {
	cfg := MustPreset(ProfileEnhanced)
	cfg.Capabilities = map[string]bool{"a": true}
	c := cfg.Clone()
	c.Weights["new"] = 1
	c.Capabilities["a"] = false
	c.RequiredCapabilities[0] = "changed"

	assert.NotContains(t, cfg.Weights, "new")
	assert.True(t, cfg.Capabilities["a"])
	assert.Equal(t, CapabilityEventCorrelation, cfg.RequiredCapabilities[0])
}

func TestConfiguration_ActiveMethods(t *testing.T) {
	cfg := Configuration{Weights: map[string]float64{"c": 0.2, "a": 0.5, "b": 0, "d": 0.3}}
	assert.Equal(t, []string{"a", "c", "d"}, cfg.ActiveMethods())
	assert.InDelta(t, 1.0, cfg.ActiveWeightSum(), 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	content := `
weights:
  ascendant_alignment: 0.6
  sign_relationship: 0.4
replace_weights: true
thresholds:
  high: 90
  variance_ceiling: 300
algorithm:
  range_minutes: 30
  step_minutes: 2
  evaluation_timeout_ms: 250
rules:
  min_active_methods: 2
  enforce_weight_sum: true
capabilities:
  event_correlation: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	o, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.True(t, o.ReplaceWeights)
	require.NotNil(t, o.Thresholds)
	assert.Equal(t, 90.0, *o.Thresholds.High)
	assert.Nil(t, o.Thresholds.Low)
	assert.Equal(t, 250, *o.Algorithm.EvaluationTimeoutMs)
	assert.True(t, *o.Rules.EnforceWeightSum)
	assert.True(t, o.Capabilities[CapabilityEventCorrelation])

	cfg, _, err := CreateConfiguration(o, ProfileBalanced)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{MethodAscendantAlignment: 0.6, MethodSignRelationship: 0.4}, cfg.Weights)
	assert.Equal(t, 31, cfg.Algorithm.CandidateCount())
	assert.InDelta(t, 300, cfg.Thresholds.VarianceCeiling, 1e-9)
}

func TestLoadOverrides_Errors(t *testing.T) {
	_, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read overrides")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: [1, 2"), 0o600))
	_, err = LoadOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse overrides")
}
