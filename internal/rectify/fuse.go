package rectify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// MethodResult is one method's view of the run: its score per offset and
// the offset it rated highest.
type MethodResult struct {
	Method        string          `json:"method"`
	Weight        float64         `json:"weight"`
	Scores        map[int]float64 `json:"scores"`
	BestOffset    *int            `json:"best_offset,omitempty"`
	BestScore     float64         `json:"best_score"`
	Coverage      float64         `json:"coverage"`
	NotApplicable int             `json:"not_applicable"`
	Failed        int             `json:"failed"`
}

// MethodBreakdown is a method's contribution to the best candidate.
type MethodBreakdown struct {
	Method       string   `json:"method"`
	Weight       float64  `json:"weight"`
	Score        *float64 `json:"score,omitempty"`
	Contribution float64  `json:"contribution"`
	Share        float64  `json:"share"`
}

// EvaluationFailure records a (method, offset) pair that errored or timed out.
type EvaluationFailure struct {
	Method        string `json:"method"`
	OffsetMinutes int    `json:"offset_minutes"`
	Class         string `json:"class"`
	Message       string `json:"message"`
}

// EnsembleResult is the ranked outcome of a run.
type EnsembleResult struct {
	Profile         Profile             `json:"profile"`
	Estimate        time.Time           `json:"estimate"`
	Best            *TimeCandidate      `json:"best"`
	Confidence      int                 `json:"confidence"`
	Band            string              `json:"band"`
	Breakdown       ConfidenceBreakdown `json:"breakdown"`
	Ranked          []*TimeCandidate    `json:"ranked"`
	Excluded        []*TimeCandidate    `json:"excluded"`
	Methods         []MethodBreakdown   `json:"methods"`
	MethodResults   []MethodResult      `json:"method_results"`
	Failures        []EvaluationFailure `json:"failures"`
	Recommendations []string            `json:"recommendations"`
}

// Fuse ranks scored candidates under cfg and computes the confidence of
// the best one. cfg is validated first; a rejected configuration is never
// fused. Candidates without a contributing method go to Excluded.
func Fuse(estimate time.Time, candidates []*TimeCandidate, cfg Configuration) (*EnsembleResult, error) {
	if err := ValidateConfiguration(cfg).Err(cfg.Profile); err != nil {
		return nil, err
	}
	weights := cfg.Weights

	var ranked, excluded []*TimeCandidate
	for _, c := range candidates {
		c.Recompute(weights)
		if c.Contributors(weights) == 0 {
			excluded = append(excluded, c)
			continue
		}
		ranked = append(ranked, c)
	}

	if len(ranked) == 0 {
		return nil, &InsufficientEvidenceError{
			Required: cfg.Rules.MinActiveMethods,
			Silent:   cfg.ActiveMethods(),
		}
	}

	SortCandidates(ranked, weights)
	best := ranked[0]
	breakdown := ComputeConfidence(best, weights, cfg.Thresholds)

	res := &EnsembleResult{
		Profile:       cfg.Profile,
		Estimate:      estimate.UTC(),
		Best:          best,
		Confidence:    breakdown.Confidence,
		Band:          breakdown.Band,
		Breakdown:     breakdown,
		Ranked:        ranked,
		Excluded:      excluded,
		Methods:       methodBreakdown(best, cfg),
		MethodResults: methodResults(candidates, cfg),
		Failures:      []EvaluationFailure{},
	}
	if res.Excluded == nil {
		res.Excluded = []*TimeCandidate{}
	}
	res.Recommendations = recommend(res, cfg)
	return res, nil
}

// SortCandidates orders candidates best first: higher total, then more
// contributing methods, then closer to the estimate, then earlier.
func SortCandidates(cs []*TimeCandidate, weights map[string]float64) {
	sort.SliceStable(cs, func(i, j int) bool {
		return better(cs[i], cs[j], weights)
	})
}

func better(a, b *TimeCandidate, weights map[string]float64) bool {
	if d := a.TotalWeightedScore - b.TotalWeightedScore; math.Abs(d) > tieEpsilon {
		return d > 0
	}
	if ca, cb := a.Contributors(weights), b.Contributors(weights); ca != cb {
		return ca > cb
	}
	if da, db := absInt(a.OffsetMinutes), absInt(b.OffsetMinutes); da != db {
		return da < db
	}
	return a.OffsetMinutes < b.OffsetMinutes
}

func methodBreakdown(best *TimeCandidate, cfg Configuration) []MethodBreakdown {
	active := cfg.ActiveMethods()
	out := make([]MethodBreakdown, 0, len(active))
	for _, m := range active {
		b := MethodBreakdown{Method: m, Weight: cfg.Weights[m]}
		if s, ok := best.Score(m); ok {
			score := s
			b.Score = &score
			b.Contribution = s / 100 * b.Weight
			if best.TotalWeightedScore > 0 {
				b.Share = b.Contribution / best.TotalWeightedScore
			}
		}
		out = append(out, b)
	}
	return out
}

func methodResults(candidates []*TimeCandidate, cfg Configuration) []MethodResult {
	active := cfg.ActiveMethods()
	out := make([]MethodResult, 0, len(active))
	for _, m := range active {
		r := MethodResult{Method: m, Weight: cfg.Weights[m], Scores: make(map[int]float64)}
		var bestCand *TimeCandidate
		for _, c := range candidates {
			s, ok := c.Score(m)
			if !ok {
				continue
			}
			r.Scores[c.OffsetMinutes] = s
			if bestCand == nil || s > r.BestScore+tieEpsilon ||
				(math.Abs(s-r.BestScore) <= tieEpsilon && closer(c.OffsetMinutes, bestCand.OffsetMinutes)) {
				bestCand, r.BestScore = c, s
			}
		}
		if bestCand != nil {
			off := bestCand.OffsetMinutes
			r.BestOffset = &off
		}
		if len(candidates) > 0 {
			r.Coverage = float64(len(r.Scores)) / float64(len(candidates))
		}
		out = append(out, r)
	}
	return out
}

func closer(a, b int) bool {
	if absInt(a) != absInt(b) {
		return absInt(a) < absInt(b)
	}
	return a < b
}

func recommend(res *EnsembleResult, cfg Configuration) []string {
	best := res.Best
	var recs []string

	instant := best.Instant.Format("2006-01-02 15:04 MST")
	switch res.Band {
	case BandHigh:
		recs = append(recs, fmt.Sprintf("High confidence (%d): adopt offset %+d min (%s).", res.Confidence, best.OffsetMinutes, instant))
	case BandModerate:
		recs = append(recs, fmt.Sprintf("Moderate confidence (%d): offset %+d min (%s) is the leading candidate; confirm with additional life events.", res.Confidence, best.OffsetMinutes, instant))
	case BandLow:
		recs = append(recs, fmt.Sprintf("Low confidence (%d): offset %+d min (%s) is only weakly preferred; treat as provisional.", res.Confidence, best.OffsetMinutes, instant))
	default:
		recs = append(recs, fmt.Sprintf("Very low confidence (%d): no candidate is clearly supported; gather more evidence before adopting a time.", res.Confidence))
	}

	rangeMin, step := cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes
	if absInt(best.OffsetMinutes) > rangeMin-step {
		recs = append(recs, fmt.Sprintf("Best candidate is at the edge of the ±%d min window; widen range_minutes to check beyond it.", rangeMin))
	}

	var missing []string
	for _, m := range cfg.ActiveMethods() {
		if _, ok := best.Score(m); !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		recs = append(recs, fmt.Sprintf("No score at the best candidate from: %s.", strings.Join(missing, ", ")))
	}

	if len(res.Ranked) > 1 {
		second := res.Ranked[1]
		if gap := best.TotalWeightedScore - second.TotalWeightedScore; gap < cfg.Thresholds.AmbiguityMargin {
			recs = append(recs, fmt.Sprintf("Runner-up at offset %+d min is within %.3f of the best total; the ranking between them is ambiguous.", second.OffsetMinutes, gap))
		}
	}

	// a 1-minute grid is already the finest scan
	if step > 1 && res.Band != BandVeryLow {
		recs = append(recs, fmt.Sprintf("Refine with a narrower scan around offset %+d min (e.g. range %d, step %d).",
			best.OffsetMinutes, step*refineRangeSteps, refineStep(step)))
	}
	return recs
}

func refineStep(step int) int {
	return max(1, step/refineStepDivisor)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
