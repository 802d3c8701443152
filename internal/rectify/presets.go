package rectify

import (
	"time"
)

// Profile names a preset configuration.
type Profile string

const (
	ProfileStrict   Profile = "strict"
	ProfileBalanced Profile = "balanced"
	ProfileRelaxed  Profile = "relaxed"
	ProfileEnhanced Profile = "enhanced"
)

// Profiles lists the presets from most to least demanding, enhanced last.
var Profiles = []Profile{ProfileStrict, ProfileBalanced, ProfileRelaxed, ProfileEnhanced}

// DefaultWeights are the reference method weights shared by the presets.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		MethodAscendantAlignment: 0.35,
		MethodSignRelationship:   0.25,
		MethodBeneficMalefic:     0.20,
		MethodEventCorrelation:   0.20,
	}
}

func defaultThresholds(high, moderate, low float64) Thresholds {
	return Thresholds{
		Confidence:        ConfidenceThresholds{High: high, Moderate: moderate, Low: low},
		StrongMethodScore: 70,
		DominantWeight:    0.3,
		VarianceCeiling:   400,
		AmbiguityMargin:   0.02,
	}
}

// Preset returns a fresh copy of the named preset.
//
// Two grid defaults are in use: a wide ±120 min / 5 min scan and a narrower
// ±60 min / 10 min scan for runs that already have strong evidence. Both
// are plain settings; neither is assumed to be the production default.
func Preset(p Profile) (Configuration, error) {
	cfg := Configuration{
		Profile: p,
		Weights: DefaultWeights(),
		Algorithm: AlgorithmSettings{
			MaxCandidates:     100,
			Parallelism:       4,
			EvaluationTimeout: 5 * time.Second,
		},
		Rules: ValidationRules{WeightSumTolerance: 0.01},
	}

	switch p {
	case ProfileStrict:
		cfg.Thresholds = defaultThresholds(85, 70, 50)
		cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes = 60, 5
		cfg.Rules.MinActiveMethods = 3
		cfg.Rules.EnforceWeightSum = true
		cfg.Rules.AllowZeroWeights = false
	case ProfileBalanced:
		cfg.Thresholds = defaultThresholds(80, 65, 45)
		cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes = 120, 5
		cfg.Rules.MinActiveMethods = 2
		cfg.Rules.EnforceWeightSum = true
		cfg.Rules.AllowZeroWeights = true
	case ProfileRelaxed:
		cfg.Thresholds = defaultThresholds(75, 60, 40)
		cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes = 120, 10
		cfg.Rules.MinActiveMethods = 1
		cfg.Rules.EnforceWeightSum = false
		cfg.Rules.AllowZeroWeights = true
	case ProfileEnhanced:
		cfg.Thresholds = defaultThresholds(85, 70, 50)
		cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes = 60, 10
		cfg.Rules.MinActiveMethods = 3
		cfg.Rules.EnforceWeightSum = true
		cfg.Rules.AllowZeroWeights = false
		cfg.RequiredCapabilities = []string{CapabilityEventCorrelation, CapabilityHighPrecisionEphemeris}
	default:
		return Configuration{}, &ConfigurationError{
			Profile: p,
			Violations: []Violation{{
				Rule:    RuleUnknownProfile,
				Field:   "profile",
				Message: "unknown profile " + quote(string(p)) + "; want one of strict, balanced, relaxed, enhanced",
			}},
		}
	}
	return cfg, nil
}

// MustPreset is Preset for profiles known to exist.
func MustPreset(p Profile) Configuration {
	cfg, err := Preset(p)
	if err != nil {
		panic(err)
	}
	return cfg
}

func quote(s string) string {
	return `"` + s + `"`
}
