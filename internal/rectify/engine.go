package rectify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/resilience"
)

// Engine runs every weighted evaluator against every candidate and fuses
// the complete score matrix.
type Engine struct {
	registry *Registry
	guard    *resilience.Guard
}

// Option configures an Engine.
type Option func(*Engine)

// WithGuard routes every evaluation through g (retries and per-method
// circuit breakers).
func WithGuard(g *resilience.Guard) Option {
	return func(e *Engine) { e.guard = g }
}

// NewEngine creates an engine over the evaluators in reg.
func NewEngine(reg *Registry, opts ...Option) *Engine {
	if reg == nil {
		reg, _ = NewRegistry()
	}
	e := &Engine{registry: reg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rectify is a one-shot helper: it registers evals and runs a single
// rectification.
func Rectify(ctx context.Context, birth *model.BirthData, cfg Configuration, evals ...Evaluator) (*EnsembleResult, error) {
	reg, err := NewRegistry(evals...)
	if err != nil {
		return nil, err
	}
	return NewEngine(reg).Rectify(ctx, birth, cfg)
}

// cell is one slot of the score matrix.
type cell struct {
	score Score
	err   error
}

// Rectify scores candidates around birth.Estimate and returns the fused
// result. It fails fast on an invalid configuration and returns
// *InsufficientEvidenceError when fewer than Rules.MinActiveMethods methods
// produce any score. Evaluator errors, timeouts and invalid scores never
// abort the run; the affected pair is treated as not applicable.
func (e *Engine) Rectify(ctx context.Context, birth *model.BirthData, cfg Configuration) (*EnsembleResult, error) {
	if birth == nil {
		return nil, eris.Wrap(model.ErrInvalidBirthData, "rectify: birth data is required")
	}
	if err := birth.Validate(); err != nil {
		return nil, eris.Wrap(err, "rectify: invalid birth data")
	}
	if err := ValidateConfiguration(cfg).Err(cfg.Profile); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	candidates, err := GenerateCandidates(birth.Estimate, cfg.Algorithm.RangeMinutes, cfg.Algorithm.StepMinutes)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "rectify"), zap.String("profile", string(cfg.Profile)))

	var evals []Evaluator
	var unbound []string
	for _, m := range cfg.ActiveMethods() {
		ev := e.registry.Get(m)
		if ev == nil {
			unbound = append(unbound, m)
			continue
		}
		evals = append(evals, ev)
	}
	for _, name := range e.registry.Names() {
		if cfg.Weights[name] <= 0 {
			log.Debug("skipping unweighted evaluator", zap.String("method", name))
		}
	}
	if len(unbound) > 0 {
		log.Warn("weighted methods have no evaluator", zap.Strings("methods", unbound))
	}

	matrix, err := e.evaluate(ctx, evals, candidates, birth, cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	var failures []EvaluationFailure
	notApplicable := make(map[string]int, len(evals))
	failed := make(map[string]int, len(evals))
	var scored, silent []string

	for i, ev := range evals {
		name := ev.Name()
		hit := false
		for j, c := range candidates {
			cl := matrix[i][j]
			if cl.err != nil {
				failed[name]++
				mErr := &MethodEvaluationError{
					Method:        name,
					OffsetMinutes: c.OffsetMinutes,
					Class:         resilience.Classify(cl.err).String(),
					Err:           cl.err,
				}
				log.Warn("method evaluation failed; treating as not applicable",
					zap.String("method", name),
					zap.Int("offset_minutes", c.OffsetMinutes),
					zap.String("class", mErr.Class),
					zap.Error(cl.err),
				)
				failures = append(failures, EvaluationFailure{
					Method:        name,
					OffsetMinutes: c.OffsetMinutes,
					Class:         mErr.Class,
					Message:       mErr.Error(),
				})
				continue
			}
			value, ok := sanitizeScore(cl.score, name, c.OffsetMinutes, log)
			if !ok {
				notApplicable[name]++
				continue
			}
			c.AttachScore(name, value, cfg.Weights)
			hit = true
		}
		if hit {
			scored = append(scored, name)
		} else {
			silent = append(silent, name)
		}
	}
	silent = append(silent, unbound...)

	if len(scored) < cfg.Rules.MinActiveMethods {
		ie := &InsufficientEvidenceError{
			Required: cfg.Rules.MinActiveMethods,
			Got:      len(scored),
			Scored:   scored,
			Silent:   sortedCopy(silent),
		}
		log.Warn("insufficient evidence", zap.Int("required", ie.Required), zap.Int("got", ie.Got))
		return nil, ie
	}

	res, err := Fuse(birth.Estimate, candidates, cfg)
	if err != nil {
		return nil, err
	}

	for i := range res.MethodResults {
		mr := &res.MethodResults[i]
		mr.NotApplicable = notApplicable[mr.Method]
		mr.Failed = failed[mr.Method]
	}
	if failures != nil {
		res.Failures = failures
	}

	if len(failures) > 0 {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("%d evaluation(s) failed or timed out and were treated as not applicable; check method and ephemeris health.", len(failures)))
	}
	if !birth.HasEvents() && cfg.Weights[MethodEventCorrelation] > 0 {
		res.Recommendations = append(res.Recommendations,
			"No life events supplied: add dated events (marriage, career change, relocation, births) to enable event correlation.")
	}

	log.Info("rectification complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("ranked", len(res.Ranked)),
		zap.Int("best_offset_minutes", res.Best.OffsetMinutes),
		zap.Int("confidence", res.Confidence),
		zap.Int("failures", len(failures)),
	)
	return res, nil
}

// evaluate fills the [method][candidate] matrix. Each goroutine owns one
// slot, so no locking is needed; Wait guarantees the matrix is complete
// before anything reads it.
func (e *Engine) evaluate(ctx context.Context, evals []Evaluator, candidates []*TimeCandidate, birth *model.BirthData, settings AlgorithmSettings) ([][]cell, error) {
	matrix := make([][]cell, len(evals))
	for i := range matrix {
		matrix[i] = make([]cell, len(candidates))
	}

	limit := settings.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for i, ev := range evals {
		for j, c := range candidates {
			g.Go(func() error {
				score, err := e.evaluateOne(ctx, ev, c.Instant, birth, settings.EvaluationTimeout)
				matrix[i][j] = cell{score: score, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "rectify: run canceled")
	}
	return matrix, nil
}

func (e *Engine) evaluateOne(ctx context.Context, ev Evaluator, instant time.Time, birth *model.BirthData, timeout time.Duration) (Score, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return resilience.Call(ctx, e.guard, ev.Name(), func(ctx context.Context) (Score, error) {
		return evaluateAsync(ctx, ev, instant, birth)
	})
}

type evalResult struct {
	score Score
	err   error
}

// evaluateAsync returns when ev does or when ctx ends, whichever is first.
// An abandoned evaluator runs to completion in the background; its result
// is dropped.
func evaluateAsync(ctx context.Context, ev Evaluator, instant time.Time, birth *model.BirthData) (Score, error) {
	done := make(chan evalResult, 1)
	go func() {
		var r evalResult
		defer func() {
			if p := recover(); p != nil {
				r = evalResult{err: eris.Errorf("evaluator panicked: %v", p)}
			}
			done <- r
		}()
		r.score, r.err = ev.Evaluate(ctx, instant, birth)
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			return Score{}, ctx.Err()
		}
		return r.score, r.err
	case <-ctx.Done():
		return Score{}, ctx.Err()
	}
}

// sanitizeScore clamps out-of-range values into [0, 100] and drops
// non-finite ones. ok is false when nothing should be attached.
func sanitizeScore(s Score, method string, offset int, log *zap.Logger) (float64, bool) {
	if !s.Applicable {
		return 0, false
	}
	v := s.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		log.Warn("discarding non-finite score",
			zap.String("method", method), zap.Int("offset_minutes", offset), zap.Float64("score", v))
		return 0, false
	}
	if v < 0 || v > 100 {
		clamped := math.Max(0, math.Min(100, v))
		log.Warn("clamping out-of-range score",
			zap.String("method", method), zap.Int("offset_minutes", offset),
			zap.Float64("score", v), zap.Float64("clamped", clamped))
		return clamped, true
	}
	return v, true
}

func sortedCopy(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return sortedKeys(set)
}
