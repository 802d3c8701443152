package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockLister implements RunLister for testing.
type mockLister struct {
	runs    []model.Run
	listErr error
	filter  store.RunFilter
}

func (m *mockLister) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func newTestCollector(l RunLister) *Collector {
	c := NewCollector(l)
	c.now = func() time.Time { return testNow }
	return c
}

func complete(profile string, confidence float64, age time.Duration) model.Run {
	return model.Run{Profile: profile, Status: model.RunStatusComplete, Confidence: confidence, CreatedAt: testNow.Add(-age)}
}

func failed(category model.ErrorCategory, age time.Duration) model.Run {
	r := model.Run{Profile: "balanced", Status: model.RunStatusFailed, CreatedAt: testNow.Add(-age)}
	if category != "" {
		r.Error = &model.RunError{Message: "boom", Category: category}
	}
	return r
}

func TestCollector_EmptyStore(t *testing.T) {
	c := newTestCollector(&mockLister{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.AvgConfidence)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, testNow, snap.CollectedAt)
}

func TestCollector_Collect(t *testing.T) {
	l := &mockLister{runs: []model.Run{
		complete("balanced", 80, time.Hour),
		complete("strict", 60, 2*time.Hour),
		failed(model.ErrorCategoryEvidence, 3*time.Hour),
		failed(model.ErrorCategoryConfiguration, 4*time.Hour),
		failed("", 5*time.Hour),
		complete("balanced", 10, 48*time.Hour), // outside the window
	}}
	c := newTestCollector(l)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, testNow.Add(-24*time.Hour), l.filter.CreatedAfter)
	assert.Equal(t, maxSnapshotRuns, l.filter.Limit)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 3, snap.RunsFailed)
	assert.InDelta(t, 0.6, snap.FailRate, 1e-9)
	assert.InDelta(t, 70.0, snap.AvgConfidence, 1e-9)
	assert.Equal(t, map[model.ErrorCategory]int{
		model.ErrorCategoryEvidence:      1,
		model.ErrorCategoryConfiguration: 1,
		model.ErrorCategoryInternal:      1,
	}, snap.FailuresByCategory)
	assert.Equal(t, map[string]int{"balanced": 4, "strict": 1}, snap.RunsByProfile)
}

func TestCollector_ListError(t *testing.T) {
	c := newTestCollector(&mockLister{listErr: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_InvalidLookback(t *testing.T) {
	_, err := newTestCollector(&mockLister{}).Collect(context.Background(), 0)
	assert.Error(t, err)
}

func TestCollector_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	off := 0
	require.NoError(t, st.SaveRun(ctx, &model.Run{Profile: "balanced", Estimate: testNow, BestOffset: &off, Confidence: 90}))
	require.NoError(t, st.SaveRun(ctx, &model.Run{
		Profile: "strict", Estimate: testNow, Status: model.RunStatusFailed,
		Error: &model.RunError{Message: "no evidence", Category: model.ErrorCategoryEvidence},
	}))
	old := &model.Run{Profile: "relaxed", Estimate: testNow, CreatedAt: time.Now().UTC().Add(-72 * time.Hour)}
	require.NoError(t, st.SaveRun(ctx, old))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.InDelta(t, 90.0, snap.AvgConfidence, 1e-9)
	assert.Equal(t, 1, snap.FailuresByCategory[model.ErrorCategoryEvidence])
}
