// Package store persists rectification runs and their score matrices.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Profile string          `json:"profile,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`

	// CreatedAfter keeps runs created at or after this instant.
	CreatedAfter time.Time `json:"created_after,omitempty"`
}

// Store defines the persistence interface for rectification runs.
type Store interface {
	// SaveRun inserts run and its scores. It assigns an id and creation
	// time when they are empty.
	SaveRun(ctx context.Context, run *model.Run) error
	// GetRun returns a run with its scores, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// ListRuns returns runs newest first, without scores.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

var scoreColumns = []string{"run_id", "method", "offset_minutes", "score"}

// prepare fills in the id and creation time of a run about to be saved.
func prepare(run *model.Run) error {
	if run == nil {
		return eris.New("store: run is required")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return eris.Wrapf(err, "store: invalid run id %q", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunStatusComplete
	}
	return nil
}

func scoreRows(run *model.Run) [][]any {
	rows := make([][]any, 0, len(run.Scores))
	for _, s := range run.Scores {
		rows = append(rows, []any{run.ID, s.Method, s.OffsetMinutes, s.Score})
	}
	return rows
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}

func marshalError(e *model.RunError) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	data, err := json.Marshal(e)
	return data, eris.Wrap(err, "store: marshal run error")
}

func unmarshalError(data []byte) (*model.RunError, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var e model.RunError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run error")
	}
	return &e, nil
}

// nullableJSON maps an empty raw message to NULL.
func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
