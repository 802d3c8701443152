package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the outcome of a persisted rectification run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ErrorCategory classifies why a run failed.
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryEvidence      ErrorCategory = "insufficient_evidence"
	ErrorCategoryInput         ErrorCategory = "input"
	ErrorCategoryInternal      ErrorCategory = "internal"
)

// RunError holds the failure details of a run.
type RunError struct {
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category"`
}

// Run is one persisted rectification. Config and Result are stored as
// opaque JSON so the store does not depend on the engine's types.
type Run struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	Profile    string          `json:"profile"`
	Estimate   time.Time       `json:"estimate"`
	Status     RunStatus       `json:"status"`
	BestOffset *int            `json:"best_offset,omitempty"`
	Confidence float64         `json:"confidence"`
	Config     json.RawMessage `json:"config,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *RunError       `json:"error,omitempty"`
	Scores     []MethodScore   `json:"scores,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MethodScore is one cell of a run's score matrix.
type MethodScore struct {
	Method        string  `json:"method"`
	OffsetMinutes int     `json:"offset_minutes"`
	Score         float64 `json:"score"`
}
