package rectify

import (
	"maps"
	"math"

	"github.com/rotisserie/eris"
)

// Efficacy is the static quality profile of a method, each value in [0, 1].
type Efficacy struct {
	Accuracy          float64 `json:"accuracy" yaml:"accuracy"`
	Reliability       float64 `json:"reliability" yaml:"reliability"`
	ComputationalCost float64 `json:"computational_cost" yaml:"computational_cost"`
}

// RawWeight is (accuracy + reliability + (1 - cost)) / 3.
func (e Efficacy) RawWeight() float64 {
	return (e.Accuracy + e.Reliability + (1 - e.ComputationalCost)) / 3
}

// UnknownEfficacy is assumed for methods missing from the efficacy table.
var UnknownEfficacy = Efficacy{Accuracy: 0.6, Reliability: 0.6, ComputationalCost: 0.5}

// DefaultEfficacy returns the efficacy table of the reference methods.
func DefaultEfficacy() map[string]Efficacy {
	return map[string]Efficacy{
		MethodAscendantAlignment: {Accuracy: 0.85, Reliability: 0.80, ComputationalCost: 0.30},
		MethodSignRelationship:   {Accuracy: 0.70, Reliability: 0.75, ComputationalCost: 0.20},
		MethodBeneficMalefic:     {Accuracy: 0.65, Reliability: 0.70, ComputationalCost: 0.25},
		MethodEventCorrelation:   {Accuracy: 0.80, Reliability: 0.65, ComputationalCost: 0.60},
	}
}

// OptimizationConstraints tune OptimizeWeights. Zero values select defaults.
type OptimizationConstraints struct {
	// MinWeight and MaxWeight bound each raw weight before normalization.
	// MaxWeight 0 means no upper bound.
	MinWeight float64 `json:"min_weight,omitempty" yaml:"min_weight,omitempty"`
	MaxWeight float64 `json:"max_weight,omitempty" yaml:"max_weight,omitempty"`

	// DefaultWeights are the baseline (DefaultWeights() when nil).
	DefaultWeights map[string]float64 `json:"default_weights,omitempty" yaml:"default_weights,omitempty"`

	// Efficacy overrides the table (DefaultEfficacy() when nil).
	Efficacy map[string]Efficacy `json:"efficacy,omitempty" yaml:"efficacy,omitempty"`

	// Thresholds drive the confidence comparison (balanced preset when zero).
	Thresholds *Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// OptimizationResult is the outcome of OptimizeWeights.
type OptimizationResult struct {
	Weights        map[string]float64 `json:"weights"`
	DefaultWeights map[string]float64 `json:"default_weights"`

	// Improvement is confidence under Weights minus confidence under
	// DefaultWeights for the supplied scores.
	Improvement float64 `json:"improvement"`

	// Consistency is 1 - coefficient of variation of Weights.
	Consistency float64 `json:"consistency"`

	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// OptimizeWeights proposes method weights from a static efficacy table,
// restricted to the methods that produced a nonzero score in scores (one
// score per method for a representative candidate). With fewer than two
// such methods the defaults are returned unchanged and Applied is false.
func OptimizeWeights(scores map[string]float64, c OptimizationConstraints) (OptimizationResult, error) {
	if c.MinWeight < 0 || c.MaxWeight < 0 || (c.MaxWeight > 0 && c.MinWeight > c.MaxWeight) {
		return OptimizationResult{}, eris.Errorf("rectify: invalid weight bounds min=%v max=%v", c.MinWeight, c.MaxWeight)
	}
	for _, m := range sortedKeys(scores) {
		if s := scores[m]; math.IsNaN(s) || s < 0 || s > 100 {
			return OptimizationResult{}, eris.Errorf("rectify: score for %s is %v, want [0, 100]", m, s)
		}
	}

	defaults := c.DefaultWeights
	if defaults == nil {
		defaults = DefaultWeights()
	}
	efficacy := c.Efficacy
	if efficacy == nil {
		efficacy = DefaultEfficacy()
	}
	thresholds := MustPreset(ProfileBalanced).Thresholds
	if c.Thresholds != nil {
		thresholds = *c.Thresholds
	}

	res := OptimizationResult{
		Weights:        maps.Clone(defaults),
		DefaultWeights: maps.Clone(defaults),
	}

	var methods []string
	for _, m := range sortedKeys(scores) {
		if scores[m] > 0 {
			methods = append(methods, m)
		}
	}
	if len(methods) < 2 {
		res.Reason = "fewer than two methods produced a nonzero score"
		return res, nil
	}

	raw := make(map[string]float64, len(methods))
	sum := 0.0
	for _, m := range methods {
		eff, ok := efficacy[m]
		if !ok {
			eff = UnknownEfficacy
		}
		w := eff.RawWeight()
		if w < c.MinWeight {
			w = c.MinWeight
		}
		if c.MaxWeight > 0 && w > c.MaxWeight {
			w = c.MaxWeight
		}
		raw[m] = w
		sum += w
	}
	if sum <= 0 {
		res.Reason = "efficacy table yields no positive weight"
		return res, nil
	}

	optimized := make(map[string]float64, len(methods))
	for _, m := range methods {
		optimized[m] = raw[m] / sum
	}

	res.Weights = optimized
	res.Applied = true
	res.Improvement = float64(confidenceFor(scores, optimized, thresholds) - confidenceFor(scores, defaults, thresholds))
	res.Consistency = weightConsistency(optimized, methods)
	return res, nil
}

func confidenceFor(scores, weights map[string]float64, t Thresholds) int {
	c := &TimeCandidate{Scores: make(map[string]float64, len(scores))}
	for m, s := range scores {
		if weights[m] > 0 {
			c.Scores[m] = s
		}
	}
	c.Recompute(weights)
	return ComputeConfidence(c, weights, t).Confidence
}

func weightConsistency(weights map[string]float64, methods []string) float64 {
	xs := make([]float64, len(methods))
	for i, m := range methods {
		xs[i] = weights[m]
	}
	m := mean(xs)
	if m == 0 {
		return 0
	}
	return clamp01(1 - math.Sqrt(variance(xs))/m)
}
