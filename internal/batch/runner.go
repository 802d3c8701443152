package batch

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// DefaultConcurrency applies when Options.Concurrency is not positive.
const DefaultConcurrency = 4

// Rectifier runs one rectification. *rectify.Engine implements it.
type Rectifier interface {
	Rectify(ctx context.Context, birth *model.BirthData, cfg rectify.Configuration) (*rectify.EnsembleResult, error)
}

// ConfigFunc resolves the configuration for one subject.
type ConfigFunc func(birth *model.BirthData) (rectify.Configuration, error)

// Observer sees every attempted rectification, failed or not. It is
// called concurrently.
type Observer func(ctx context.Context, birth *model.BirthData, cfg rectify.Configuration, res *rectify.EnsembleResult, runErr error)

// Options tune Run.
type Options struct {
	Concurrency int
	Observe     Observer
}

// Outcome is the result for one record.
type Outcome struct {
	Line       int                 `json:"line"`
	Name       string              `json:"name"`
	Estimate   time.Time           `json:"estimate,omitzero"`
	BestOffset *int                `json:"best_offset,omitempty"`
	BestTime   *time.Time          `json:"best_time,omitempty"`
	Confidence int                 `json:"confidence"`
	Band       string              `json:"band,omitempty"`
	Category   model.ErrorCategory `json:"error_category,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Failed reports whether the record produced no ranking.
func (o Outcome) Failed() bool { return o.Error != "" }

// Run rectifies every valid record with at most opts.Concurrency runs in
// flight. A failing record never stops the others; outcomes keep record
// order. Run returns an error only when ctx ends first.
func Run(ctx context.Context, r Rectifier, records []Record, configFor ConfigFunc, opts Options) ([]Outcome, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	outcomes := make([]Outcome, len(records))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, rec := range records {
		outcomes[i] = Outcome{Line: rec.Line}
		if rec.Err != nil {
			outcomes[i].fail(rec.Err)
			failed.Add(1)
			continue
		}
		outcomes[i].Name = rec.Birth.Name
		outcomes[i].Estimate = rec.Birth.Estimate

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			log := zap.L().With(zap.Int("line", rec.Line), zap.String("subject", rec.Birth.Name))

			cfg, err := configFor(rec.Birth)
			if err != nil {
				failed.Add(1)
				outcomes[i].fail(err)
				log.Warn("batch: configuration rejected", zap.Error(err))
				return nil
			}

			res, err := r.Rectify(gctx, rec.Birth, cfg)
			if opts.Observe != nil {
				opts.Observe(gctx, rec.Birth, cfg, res, err)
			}
			if err != nil {
				failed.Add(1)
				outcomes[i].fail(err)
				log.Warn("batch: rectification failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			outcomes[i].succeed(res)
			log.Debug("batch: rectification complete", zap.Int("confidence", res.Confidence))
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return outcomes, eris.Wrap(err, "batch: cancelled")
	}

	zap.L().Info("batch complete",
		zap.Int("records", len(records)),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes, nil
}

func (o *Outcome) fail(err error) {
	o.Category = rectify.ErrorCategory(err)
	o.Error = err.Error()
}

func (o *Outcome) succeed(res *rectify.EnsembleResult) {
	off := res.Best.OffsetMinutes
	best := res.Best.Instant
	o.BestOffset = &off
	o.BestTime = &best
	o.Confidence = res.Confidence
	o.Band = res.Band
}

var csvHeader = []string{"line", "name", "estimate", "best_offset_minutes", "best_time", "confidence", "band", "error_category", "error"}

// WriteCSV writes one row per outcome.
func WriteCSV(w io.Writer, outcomes []Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "batch: write csv header")
	}
	for _, o := range outcomes {
		row := []string{strconv.Itoa(o.Line), o.Name, "", "", "", "", o.Band, string(o.Category), o.Error}
		if !o.Estimate.IsZero() {
			row[2] = o.Estimate.Format(time.RFC3339)
		}
		if o.BestOffset != nil {
			row[3] = strconv.Itoa(*o.BestOffset)
			row[4] = o.BestTime.Format(time.RFC3339)
			row[5] = strconv.Itoa(o.Confidence)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "batch: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "batch: flush csv")
}
