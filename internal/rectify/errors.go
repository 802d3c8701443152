package rectify

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinels matched with errors.Is. The typed errors below report true for
// their sentinel.
var (
	ErrConfiguration        = eris.New("rectify: invalid configuration")
	ErrInsufficientEvidence = eris.New("rectify: insufficient evidence")
	ErrDegenerateCandidates = eris.New("rectify: degenerate candidate set")
	ErrMethodEvaluation     = eris.New("rectify: method evaluation failed")
)

// Violation is one broken configuration rule with the offending values
// spelled out in Message.
type Violation struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// Rule identifiers used in Violation.Rule.
const (
	RuleWeightRange        = "weight_range"
	RuleZeroWeight         = "zero_weight"
	RuleMinActiveMethods   = "min_active_methods"
	RuleWeightSum          = "weight_sum"
	RuleThresholdRange     = "threshold_range"
	RuleThresholdOrder     = "threshold_order"
	RuleDegenerateSet      = "degenerate_candidate_set"
	RuleMissingCapability  = "missing_capability"
	RuleUnknownProfile     = "unknown_profile"
	RuleInvalidFusionParam = "fusion_parameter"
)

// ConfigurationError is fatal: the run never starts.
type ConfigurationError struct {
	Profile    Profile
	Violations []Violation

	// Degenerate is set when one of the violations is an empty candidate set.
	Degenerate *DegenerateCandidateSetError
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	profile := string(e.Profile)
	if profile == "" {
		profile = "custom"
	}
	return fmt.Sprintf("rectify: invalid configuration (profile %s): %s", profile, strings.Join(parts, "; "))
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Unwrap exposes the degenerate candidate error, if any.
func (e *ConfigurationError) Unwrap() error {
	if e.Degenerate == nil {
		return nil
	}
	return e.Degenerate
}

// HasRule reports whether any violation carries rule.
func (e *ConfigurationError) HasRule(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// DegenerateCandidateSetError means the range/step pair yields no candidates.
type DegenerateCandidateSetError struct {
	RangeMinutes int
	StepMinutes  int
	Reason       string
}

func (e *DegenerateCandidateSetError) Error() string {
	return fmt.Sprintf("rectify: degenerate candidate set (range=%d step=%d): %s", e.RangeMinutes, e.StepMinutes, e.Reason)
}

// Is matches ErrDegenerateCandidates.
func (e *DegenerateCandidateSetError) Is(target error) bool {
	return target == ErrDegenerateCandidates
}

// InsufficientEvidenceError means too few methods produced any score.
type InsufficientEvidenceError struct {
	Required int
	Got      int
	Scored   []string
	Silent   []string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("rectify: insufficient evidence: %d method(s) produced scores (%s), %d required; no score from: %s",
		e.Got, joinOrNone(e.Scored), e.Required, joinOrNone(e.Silent))
}

// Is matches ErrInsufficientEvidence.
func (e *InsufficientEvidenceError) Is(target error) bool {
	return target == ErrInsufficientEvidence
}

// MethodEvaluationError records one failed (method, candidate) evaluation.
// The engine recovers from it locally; it never aborts a run.
type MethodEvaluationError struct {
	Method        string
	OffsetMinutes int
	Class         string
	Err           error
}

func (e *MethodEvaluationError) Error() string {
	return fmt.Sprintf("rectify: method %s at offset %+d (%s): %v", e.Method, e.OffsetMinutes, e.Class, e.Err)
}

func (e *MethodEvaluationError) Unwrap() error {
	return e.Err
}

// Is matches ErrMethodEvaluation.
func (e *MethodEvaluationError) Is(target error) bool {
	return target == ErrMethodEvaluation
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
