package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Guard wraps a call with a per-attempt deadline, retries for transient
// failures, and a circuit breaker per key. A nil *Guard runs calls bare.
type Guard struct {
	Timeout  time.Duration
	Retry    RetryConfig
	Breakers *Breakers
}

// GuardConfig is the flat, config-file shaped form of a Guard.
type GuardConfig struct {
	TimeoutMs        int     `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	MaxAttempts      int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoffMs int     `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int     `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	Multiplier       float64 `mapstructure:"multiplier" yaml:"multiplier"`
	JitterFraction   float64 `mapstructure:"jitter_fraction" yaml:"jitter_fraction"`
	FailureThreshold int     `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	CooldownSecs     int     `mapstructure:"cooldown_secs" yaml:"cooldown_secs"`
}

// NewGuard builds a Guard from cfg. Zero fields fall back to defaults; a
// zero TimeoutMs means no per-attempt deadline.
func NewGuard(cfg GuardConfig) *Guard {
	retry := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		retry.Multiplier = cfg.Multiplier
	}
	if cfg.JitterFraction > 0 {
		retry.JitterFraction = cfg.JitterFraction
	}

	breaker := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		breaker.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.CooldownSecs > 0 {
		breaker.Cooldown = time.Duration(cfg.CooldownSecs) * time.Second
	}

	return &Guard{
		Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Retry:    retry,
		Breakers: NewBreakers(breaker),
	}
}

// Call runs fn under g for key. The breaker sees one outcome per Call,
// after retries are exhausted.
func Call[T any](ctx context.Context, g *Guard, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}

	var zero T
	var b *Breaker
	if g.Breakers != nil {
		b = g.Breakers.Get(key)
		if err := b.Allow(); err != nil {
			return zero, err
		}
	}

	attempt := fn
	if g.Timeout > 0 {
		attempt = func(ctx context.Context) (T, error) {
			actx, cancel := context.WithTimeout(ctx, g.Timeout)
			defer cancel()
			val, err := fn(actx)
			if err == nil && actx.Err() != nil {
				return zero, eris.Wrapf(actx.Err(), "resilience: %s", key)
			}
			return val, err
		}
	}

	val, err := Retry(ctx, g.Retry, attempt)
	if b != nil {
		b.Record(err)
	}
	return val, err
}
