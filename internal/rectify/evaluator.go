package rectify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
)

// Score is an evaluator verdict: a value on the 0..100 scale, or not
// applicable. Not applicable is distinct from a zero score and from an error.
type Score struct {
	Value      float64
	Applicable bool
}

// Scored returns an applicable score.
func Scored(v float64) Score {
	return Score{Value: v, Applicable: true}
}

// NotApplicable returns a verdict that contributes nothing.
func NotApplicable() Score {
	return Score{}
}

// Evaluator scores one candidate instant against the birth data. Evaluate
// must not mutate shared state: the engine calls it concurrently for
// different candidates and methods.
type Evaluator interface {
	// Name is the method identifier used as the key in weights.
	Name() string
	Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (Score, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc struct {
	name string
	fn   func(ctx context.Context, instant time.Time, birth *model.BirthData) (Score, error)
}

// NewEvaluatorFunc names fn as a method.
func NewEvaluatorFunc(name string, fn func(ctx context.Context, instant time.Time, birth *model.BirthData) (Score, error)) *EvaluatorFunc {
	return &EvaluatorFunc{name: name, fn: fn}
}

// Name implements Evaluator.
func (f *EvaluatorFunc) Name() string { return f.name }

// Evaluate implements Evaluator.
func (f *EvaluatorFunc) Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (Score, error) {
	return f.fn(ctx, instant, birth)
}

// Registry holds the evaluators available to an engine, keyed by name.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry creates a registry, registering evals in order.
func NewRegistry(evals ...Evaluator) (*Registry, error) {
	r := &Registry{evaluators: make(map[string]Evaluator, len(evals))}
	for _, ev := range evals {
		if err := r.Register(ev); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds ev. Names must be non-empty and unique.
func (r *Registry) Register(ev Evaluator) error {
	if ev == nil {
		return eris.New("rectify: register nil evaluator")
	}
	name := ev.Name()
	if name == "" {
		return eris.New("rectify: evaluator has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.evaluators[name]; dup {
		return eris.Errorf("rectify: evaluator %q already registered", name)
	}
	r.evaluators[name] = ev
	return nil
}

// Get returns the evaluator for name, or nil.
func (r *Registry) Get(name string) Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evaluators[name]
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.evaluators))
	for name := range r.evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered evaluators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.evaluators)
}
