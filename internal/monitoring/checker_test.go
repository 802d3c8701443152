package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rectify-cli/internal/config"
	"github.com/sells-group/rectify-cli/internal/model"
)

func webhook(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestChecker_Check(t *testing.T) {
	srv, received := webhook(t)

	l := &mockLister{runs: []model.Run{
		failed(model.ErrorCategoryInternal, time.Hour),
		complete("balanced", 80, time.Hour),
	}}
	cfg := config.MonitoringConfig{LookbackWindowHours: 6, FailureRateThreshold: 0.9, WebhookURL: srv.URL}
	checker := NewChecker(newTestCollector(l), NewAlerter(cfg), cfg)

	rep, err := checker.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, AlertInternalErrors, rep.Alerts[0].Type)
	assert.Equal(t, []AlertType{AlertInternalErrors}, rep.Notified)
	assert.Equal(t, 2, rep.Snapshot.RunsTotal)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, testNow.Add(-6*time.Hour), l.filter.CreatedAfter)
}

func TestChecker_Check_RepeatAlertsSuppressed(t *testing.T) {
	srv, received := webhook(t)

	l := &mockLister{runs: []model.Run{failed(model.ErrorCategoryConfiguration, time.Hour)}}
	cfg := config.MonitoringConfig{FailureRateThreshold: 0.9, WebhookURL: srv.URL}
	checker := NewChecker(newTestCollector(l), NewAlerter(cfg), cfg)
	ctx := context.Background()

	first, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AlertType{AlertConfigurationErrors}, first.Notified)

	second, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Len(t, second.Alerts, 1, "alert still fires")
	assert.Empty(t, second.Notified, "but is not posted again")
	assert.Equal(t, int32(1), received.Load())

	// clears, then fires again
	l.runs = nil
	cleared, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, cleared.Alerts)

	l.runs = []model.Run{failed(model.ErrorCategoryConfiguration, time.Hour)}
	again, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AlertType{AlertConfigurationErrors}, again.Notified)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	l := &mockLister{listErr: assert.AnError}
	checker := NewChecker(newTestCollector(l), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	rep, err := checker.Check(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(newTestCollector(&mockLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestNewChecker_Defaults(t *testing.T) {
	checker := NewChecker(newTestCollector(&mockLister{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)
	assert.Equal(t, defaultLookbackHours, checker.lookback)
}
