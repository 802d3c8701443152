// Package monitoring summarizes recent run outcomes and raises alerts when
// they drift past configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/store"
)

// maxSnapshotRuns caps how many runs one snapshot reads.
const maxSnapshotRuns = 10_000

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	FailRate      float64 `json:"fail_rate"`
	AvgConfidence float64 `json:"avg_confidence"`

	FailuresByCategory map[model.ErrorCategory]int `json:"failures_by_category"`
	RunsByProfile      map[string]int              `json:"runs_by_profile"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads from.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		return nil, eris.Errorf("monitoring: lookback must be positive, got %d hours", lookbackHours)
	}
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		FailuresByCategory: make(map[model.ErrorCategory]int),
		RunsByProfile:      make(map[string]int),
		LookbackHours:      lookbackHours,
		CollectedAt:        now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxSnapshotRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var confSum float64
	for _, r := range runs {
		snap.RunsTotal++
		snap.RunsByProfile[r.Profile]++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			confSum += r.Confidence
		case model.RunStatusFailed:
			snap.RunsFailed++
			category := model.ErrorCategoryInternal
			if r.Error != nil && r.Error.Category != "" {
				category = r.Error.Category
			}
			snap.FailuresByCategory[category]++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		snap.AvgConfidence = confSum / float64(snap.RunsComplete)
	}
	return snap, nil
}
