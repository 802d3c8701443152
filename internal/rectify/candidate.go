package rectify

import (
	"time"
)

// TimeCandidate is one offset from the estimated birth instant together
// with the scores methods assigned to it. A method that was not applicable
// or failed has no entry in Scores; absence is not zero.
type TimeCandidate struct {
	OffsetMinutes      int                `json:"offset_minutes"`
	Instant            time.Time          `json:"instant"`
	Scores             map[string]float64 `json:"scores"`
	TotalWeightedScore float64            `json:"total_weighted_score"`
}

// GenerateOffsets returns -range, -range+step, ... up to the last offset
// not exceeding +range. Offset 0 is included whenever range is a multiple
// of step.
func GenerateOffsets(rangeMinutes, stepMinutes int) ([]int, error) {
	switch {
	case rangeMinutes <= 0:
		return nil, &DegenerateCandidateSetError{RangeMinutes: rangeMinutes, StepMinutes: stepMinutes, Reason: "range must be positive"}
	case stepMinutes <= 0:
		return nil, &DegenerateCandidateSetError{RangeMinutes: rangeMinutes, StepMinutes: stepMinutes, Reason: "step must be positive"}
	case stepMinutes > rangeMinutes:
		return nil, &DegenerateCandidateSetError{RangeMinutes: rangeMinutes, StepMinutes: stepMinutes, Reason: "step exceeds range"}
	}

	offsets := make([]int, 0, 2*rangeMinutes/stepMinutes+1)
	for off := -rangeMinutes; off <= rangeMinutes; off += stepMinutes {
		offsets = append(offsets, off)
	}
	return offsets, nil
}

// GenerateCandidates builds one unscored candidate per offset around estimate.
func GenerateCandidates(estimate time.Time, rangeMinutes, stepMinutes int) ([]*TimeCandidate, error) {
	offsets, err := GenerateOffsets(rangeMinutes, stepMinutes)
	if err != nil {
		return nil, err
	}
	base := estimate.UTC()
	candidates := make([]*TimeCandidate, len(offsets))
	for i, off := range offsets {
		candidates[i] = &TimeCandidate{
			OffsetMinutes: off,
			Instant:       base.Add(time.Duration(off) * time.Minute),
			Scores:        make(map[string]float64),
		}
	}
	return candidates, nil
}

// AttachScore records a method score and recomputes the weighted total.
func (c *TimeCandidate) AttachScore(method string, score float64, weights map[string]float64) {
	c.Scores[method] = score
	c.Recompute(weights)
}

// Recompute sets TotalWeightedScore to the sum of score/100 x weight over
// the methods that scored this candidate.
func (c *TimeCandidate) Recompute(weights map[string]float64) {
	c.TotalWeightedScore = weightedTotal(c.Scores, weights)
}

// Contributors counts the methods with a positive weight that scored c.
func (c *TimeCandidate) Contributors(weights map[string]float64) int {
	n := 0
	for m := range c.Scores {
		if weights[m] > 0 {
			n++
		}
	}
	return n
}

// Score returns the score method gave c, if any.
func (c *TimeCandidate) Score(method string) (float64, bool) {
	s, ok := c.Scores[method]
	return s, ok
}

func weightedTotal(scores map[string]float64, weights map[string]float64) float64 {
	names := sortedKeys(scores)
	total := 0.0
	for _, m := range names {
		total += scores[m] / 100 * weights[m]
	}
	return total
}
