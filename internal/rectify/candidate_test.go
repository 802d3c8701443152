package rectify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOffsets(t *testing.T) {
	tests := []struct {
		name      string
		rng, step int
		wantLen   int
		wantFirst int
		wantLast  int
		wantZero  bool
	}{
		{"wide scan", 120, 5, 49, -120, 120, true},
		{"narrow scan", 60, 10, 13, -60, 60, true},
		{"step equals range", 30, 30, 3, -30, 30, true},
		{"one minute", 2, 1, 5, -2, 2, true},
		{"uneven truncates", 7, 5, 3, -7, 3, false},
		{"uneven wide", 100, 30, 7, -100, 80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateOffsets(tt.rng, tt.step)
			require.NoError(t, err)
			require.Len(t, got, tt.wantLen)
			assert.Equal(t, tt.wantFirst, got[0])
			assert.Equal(t, tt.wantLast, got[len(got)-1])
			assert.Equal(t, tt.wantZero, contains(got, 0))
			for i := 1; i < len(got); i++ {
				assert.Equal(t, tt.step, got[i]-got[i-1])
			}
			for _, off := range got {
				assert.LessOrEqual(t, absInt(off), tt.rng)
			}
		})
	}
}

func TestGenerateOffsets_Deterministic(t *testing.T) {
	a, err := GenerateOffsets(120, 5)
	require.NoError(t, err)
	b, err := GenerateOffsets(120, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateOffsets_Degenerate(t *testing.T) {
	tests := []struct {
		name      string
		rng, step int
		reason    string
	}{
		{"zero range", 0, 5, "range must be positive"},
		{"negative range", -10, 5, "range must be positive"},
		{"zero step", 60, 0, "step must be positive"},
		{"step exceeds range", 5, 10, "step exceeds range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateOffsets(tt.rng, tt.step)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrDegenerateCandidates)

			var de *DegenerateCandidateSetError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.rng, de.RangeMinutes)
			assert.Equal(t, tt.step, de.StepMinutes)
			assert.Equal(t, tt.reason, de.Reason)
		})
	}
}

func TestGenerateCandidates(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	estimate := time.Date(1990, 5, 15, 14, 30, 0, 0, kolkata)

	cs, err := GenerateCandidates(estimate, 60, 10)
	require.NoError(t, err)
	require.Len(t, cs, 13)

	assert.Equal(t, -60, cs[0].OffsetMinutes)
	assert.Equal(t, time.Date(1990, 5, 15, 8, 0, 0, 0, time.UTC), cs[0].Instant)
	assert.Equal(t, time.Date(1990, 5, 15, 9, 0, 0, 0, time.UTC), cs[6].Instant)
	for _, c := range cs {
		assert.NotNil(t, c.Scores)
		assert.Empty(t, c.Scores)
		assert.Zero(t, c.TotalWeightedScore)
	}
}

func TestTimeCandidate_AttachScore(t *testing.T) {
	weights := map[string]float64{"a": 0.6, "b": 0.4, "off": 0}
	c := &TimeCandidate{Scores: map[string]float64{}}

	c.AttachScore("a", 90, weights)
	assert.InDelta(t, 0.54, c.TotalWeightedScore, 1e-9)
	assert.Equal(t, 1, c.Contributors(weights))

	c.AttachScore("b", 70, weights)
	assert.InDelta(t, 0.82, c.TotalWeightedScore, 1e-9)
	assert.Equal(t, 2, c.Contributors(weights))

	c.AttachScore("off", 100, weights)
	assert.InDelta(t, 0.82, c.TotalWeightedScore, 1e-9)
	assert.Equal(t, 2, c.Contributors(weights))

	s, ok := c.Score("b")
	assert.True(t, ok)
	assert.InDelta(t, 70, s, 1e-9)
	_, ok = c.Score("missing")
	assert.False(t, ok)
}

func TestTimeCandidate_ZeroScoreIsPresent(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.5}
	c := &TimeCandidate{Scores: map[string]float64{}}
	c.AttachScore("a", 0, weights)
	assert.Equal(t, 1, c.Contributors(weights))
	assert.Zero(t, c.TotalWeightedScore)
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
