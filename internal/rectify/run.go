package rectify

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
)

// ErrorCategory maps an engine error onto the persisted failure category.
func ErrorCategory(err error) model.ErrorCategory {
	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrDegenerateCandidates):
		return model.ErrorCategoryConfiguration
	case errors.Is(err, ErrInsufficientEvidence):
		return model.ErrorCategoryEvidence
	case errors.Is(err, model.ErrInvalidBirthData):
		return model.ErrorCategoryInput
	default:
		return model.ErrorCategoryInternal
	}
}

// NewRun converts the outcome of one rectification into a storable run.
// When runErr is set the run is marked failed and res is ignored.
func NewRun(birth *model.BirthData, cfg Configuration, res *EnsembleResult, runErr error) (*model.Run, error) {
	run := &model.Run{
		Profile: string(cfg.Profile),
		Status:  model.RunStatusComplete,
	}
	if birth != nil {
		run.Subject = birth.Name
		run.Estimate = birth.Estimate.UTC()
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "rectify: marshal configuration")
	}
	run.Config = cfgJSON

	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = &model.RunError{Message: runErr.Error(), Category: ErrorCategory(runErr)}
		return run, nil
	}
	if res == nil {
		return nil, eris.New("rectify: result is required for a completed run")
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return nil, eris.Wrap(err, "rectify: marshal result")
	}
	run.Result = resultJSON
	run.Confidence = float64(res.Confidence)
	if res.Best != nil {
		off := res.Best.OffsetMinutes
		run.BestOffset = &off
	}
	if run.Estimate.IsZero() {
		run.Estimate = res.Estimate
	}

	for _, group := range [][]*TimeCandidate{res.Ranked, res.Excluded} {
		for _, c := range group {
			for method, score := range c.Scores {
				run.Scores = append(run.Scores, model.MethodScore{
					Method:        method,
					OffsetMinutes: c.OffsetMinutes,
					Score:         score,
				})
			}
		}
	}
	sort.Slice(run.Scores, func(i, j int) bool {
		a, b := run.Scores[i], run.Scores[j]
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.OffsetMinutes < b.OffsetMinutes
	})
	return run, nil
}
