package monitoring

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rectify-cli/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Report is the outcome of one health check.
type Report struct {
	Snapshot *MetricsSnapshot `json:"snapshot"`
	Alerts   []Alert          `json:"alerts"`
	// Notified lists the alerts posted this check. An alert type already
	// firing at the previous check is not posted again until it clears.
	Notified []AlertType `json:"notified"`
}

// Checker re-evaluates run health on an interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	firing map[AlertType]bool
}

// NewChecker builds a checker from the monitoring config.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		firing:    make(map[AlertType]bool),
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Run checks once per interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting run health checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run health checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: health check failed", zap.Error(err))
			}
		}
	}
}

// Check collects a snapshot, evaluates it and posts alerts that were not
// already firing.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, err
	}

	rep := &Report{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}
	fresh := c.transition(rep.Alerts)
	for _, a := range fresh {
		rep.Notified = append(rep.Notified, a.Type)
	}
	sent := c.alerter.SendAlerts(ctx, fresh)

	fields := []zap.Field{
		zap.Int("runs", snap.RunsTotal),
		zap.Int("failed", snap.RunsFailed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Int("alerts", len(rep.Alerts)),
		zap.Int("alerts_sent", sent),
	}
	if snap.RunsComplete > 0 {
		fields = append(fields, zap.Float64("avg_confidence", snap.AvgConfidence))
	}
	for _, cat := range slices.Sorted(maps.Keys(snap.FailuresByCategory)) {
		fields = append(fields, zap.Int("failed_"+string(cat), snap.FailuresByCategory[cat]))
	}
	zap.L().Info("monitoring: run health checked", fields...)

	return rep, nil
}

// transition records which alert types fire now and returns the alerts
// that were not firing at the previous check.
func (c *Checker) transition(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		now[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	c.firing = now
	return fresh
}
