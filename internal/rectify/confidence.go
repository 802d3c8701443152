package rectify

import (
	"math"
)

const (
	// MaxConfidence leaves headroom for the uncertainty no ranking removes.
	MaxConfidence = 95

	maxBonusPart      = 0.3
	alignmentFactor   = 0.1
	consistencyFactor = 0.05
	consistencySpread = 50.0
	tieEpsilon        = 1e-9

	// A refine hint suggests a scan refineRangeSteps grid steps wide at
	// 1/refineStepDivisor of the current step.
	refineRangeSteps  = 2
	refineStepDivisor = 5
)

// Confidence bands.
const (
	BandHigh     = "high"
	BandModerate = "moderate"
	BandLow      = "low"
	BandVeryLow  = "very_low"
)

// ConfidenceBreakdown shows how a confidence value was assembled.
type ConfidenceBreakdown struct {
	TotalWeightedScore float64 `json:"total_weighted_score"`
	DominantBonus      float64 `json:"dominant_bonus"`
	AgreementBonus     float64 `json:"agreement_bonus"`
	AlignmentBonus     float64 `json:"alignment_bonus"`
	ConsistencyBonus   float64 `json:"consistency_bonus"`
	DominantMethod     string  `json:"dominant_method,omitempty"`
	Raw                float64 `json:"raw"`
	Confidence         int     `json:"confidence"`
	Capped             bool    `json:"capped"`
	Band               string  `json:"band"`
}

// ComputeConfidence scores how much to trust a candidate as the answer,
// from its weighted total and the agreement among the methods that scored it.
func ComputeConfidence(c *TimeCandidate, weights map[string]float64, t Thresholds) ConfidenceBreakdown {
	present := presentScores(c.Scores, weights)
	dominant, method := dominantBonus(c.Scores, weights, t)
	agreement := agreementBonus(present, t.VarianceCeiling)
	consistency := ConsistencyBonus(present)

	b := ConfidenceBreakdown{
		TotalWeightedScore: c.TotalWeightedScore,
		DominantBonus:      dominant,
		AgreementBonus:     agreement,
		AlignmentBonus:     dominant + agreement,
		ConsistencyBonus:   consistency,
		DominantMethod:     method,
	}
	b.Raw = 100 * (b.TotalWeightedScore + b.AlignmentBonus*alignmentFactor + b.ConsistencyBonus*consistencyFactor)
	b.Confidence, b.Capped = ConfidenceValue(b.TotalWeightedScore, b.AlignmentBonus, b.ConsistencyBonus)
	b.Band = Band(b.Confidence, t.Confidence)
	return b
}

// ConfidenceValue combines a weighted total with the two bonuses into an
// integer in [0, MaxConfidence]. capped reports whether the cap applied.
func ConfidenceValue(total, alignment, consistency float64) (value int, capped bool) {
	raw := 100 * (total + alignment*alignmentFactor + consistency*consistencyFactor)
	v := math.Round(math.Max(0, math.Min(100, raw)))
	if v > MaxConfidence {
		return MaxConfidence, true
	}
	return int(v), false
}

// Band names the confidence band value falls in.
func Band(value int, t ConfidenceThresholds) string {
	v := float64(value)
	switch {
	case v >= t.High:
		return BandHigh
	case v >= t.Moderate:
		return BandModerate
	case v >= t.Low:
		return BandLow
	default:
		return BandVeryLow
	}
}

// ConsistencyBonus is 1 - maxDeviation/50 over the scores, clamped to
// [0, 1]. It is 0 with fewer than two scores.
func ConsistencyBonus(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	m := mean(scores)
	maxDev := 0.0
	for _, s := range scores {
		maxDev = math.Max(maxDev, math.Abs(s-m))
	}
	return clamp01(1 - maxDev/consistencySpread)
}

// dominantBonus rewards the highest-weighted scoring method when it clears
// the strong-score bar: up to 0.3, linear in the score above the bar. Ties
// on weight go to the method name that sorts first.
func dominantBonus(scores map[string]float64, weights map[string]float64, t Thresholds) (float64, string) {
	best, bestWeight := "", 0.0
	for _, m := range sortedKeys(scores) {
		if w := weights[m]; w > bestWeight {
			best, bestWeight = m, w
		}
	}
	if best == "" || bestWeight < t.DominantWeight {
		return 0, ""
	}
	score := scores[best]
	if score <= t.StrongMethodScore || t.StrongMethodScore >= 100 {
		return 0, ""
	}
	return maxBonusPart * clamp01((score-t.StrongMethodScore)/(100-t.StrongMethodScore)), best
}

func agreementBonus(scores []float64, ceiling float64) float64 {
	if len(scores) < 2 || ceiling <= 0 {
		return 0
	}
	return maxBonusPart * math.Max(0, 1-variance(scores)/ceiling)
}

// presentScores returns the scores of weighted methods in name order.
func presentScores(scores map[string]float64, weights map[string]float64) []float64 {
	out := make([]float64, 0, len(scores))
	for _, m := range sortedKeys(scores) {
		if weights[m] > 0 {
			out = append(out, scores[m])
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the population variance.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
