package astro

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/rectify-cli/internal/model"
)

// LimitedProvider throttles calls to a metered ephemeris backend.
type LimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewLimitedProvider allows perSecond calls with the given burst.
func NewLimitedProvider(next Provider, perSecond float64, burst int) *LimitedProvider {
	if burst <= 0 {
		burst = 1
	}
	return &LimitedProvider{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// PositionsAt implements Provider.
func (l *LimitedProvider) PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "astro: rate limit wait")
	}
	return l.next.PositionsAt(ctx, instant, loc)
}
