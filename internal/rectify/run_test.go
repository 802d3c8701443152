package rectify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rectify-cli/internal/model"
)

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ErrorCategory
	}{
		{"configuration", &ConfigurationError{Profile: ProfileStrict}, model.ErrorCategoryConfiguration},
		{"degenerate", eris.Wrap(&DegenerateCandidateSetError{StepMinutes: 0}, "grid"), model.ErrorCategoryConfiguration},
		{"evidence", eris.Wrap(&InsufficientEvidenceError{Required: 2}, "run"), model.ErrorCategoryEvidence},
		{"input", eris.Wrap(model.ErrInvalidBirthData, "rectify: birth data is required"), model.ErrorCategoryInput},
		{"other", context.DeadlineExceeded, model.ErrorCategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCategory(tt.err))
		})
	}
}

func TestNewRun_Complete(t *testing.T) {
	cfg := twoMethodConfig(t)
	birth := testBirth()
	res, err := Rectify(context.Background(), birth, cfg,
		peaked("A", 0, 90, 50),
		peaked("B", 0, 70, 40),
	)
	require.NoError(t, err)

	run, err := NewRun(birth, cfg, res, nil)
	require.NoError(t, err)

	assert.Equal(t, "subject", run.Subject)
	assert.Equal(t, "balanced", run.Profile)
	assert.True(t, run.Estimate.Equal(estimate1430))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.BestOffset)
	assert.Equal(t, 0, *run.BestOffset)
	assert.InDelta(t, 90, run.Confidence, 1e-9)
	assert.Nil(t, run.Error)

	// two methods over 49 candidates
	require.Len(t, run.Scores, 98)
	assert.Equal(t, model.MethodScore{Method: "A", OffsetMinutes: -120, Score: 50}, run.Scores[0])
	assert.Equal(t, "B", run.Scores[49].Method)

	var decoded EnsembleResult
	require.NoError(t, json.Unmarshal(run.Result, &decoded))
	assert.Equal(t, 90, decoded.Confidence)

	var decodedCfg Configuration
	require.NoError(t, json.Unmarshal(run.Config, &decodedCfg))
	assert.Equal(t, cfg.Weights, decodedCfg.Weights)
}

func TestNewRun_Failed(t *testing.T) {
	cfg := twoMethodConfig(t)
	runErr := &InsufficientEvidenceError{Required: 2, Got: 0, Silent: []string{"A", "B"}}

	run, err := NewRun(testBirth(), cfg, nil, runErr)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Nil(t, run.BestOffset)
	assert.Nil(t, run.Result)
	assert.Empty(t, run.Scores)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.ErrorCategoryEvidence, run.Error.Category)
	assert.Contains(t, run.Error.Message, "insufficient evidence")
}

func TestNewRun_RequiresResult(t *testing.T) {
	_, err := NewRun(testBirth(), twoMethodConfig(t), nil, nil)
	require.Error(t, err)
}

func TestNewRun_EstimateFromResult(t *testing.T) {
	res := &EnsembleResult{Estimate: time.Date(2001, 2, 3, 4, 5, 0, 0, time.UTC)}
	run, err := NewRun(nil, twoMethodConfig(t), res, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Estimate, run.Estimate)
	assert.Nil(t, run.BestOffset)
	assert.Empty(t, run.Scores)
}
