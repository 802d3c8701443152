package astro

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/sells-group/rectify-cli/internal/model"
)

// CachedProvider memoizes snapshots by instant and place. Several methods
// ask for the same candidate instant, so one rectification run usually hits
// the backend once per candidate. Cached snapshots are shared and must be
// treated as read-only.
type CachedProvider struct {
	next  Provider
	cache *otter.Cache[string, *Snapshot]
}

// NewCachedProvider wraps next with a bounded, write-expiring cache.
func NewCachedProvider(next Provider, maxEntries int, ttl time.Duration) *CachedProvider {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProvider{
		next: next,
		cache: otter.Must(&otter.Options[string, *Snapshot]{
			MaximumSize:      maxEntries,
			ExpiryCalculator: otter.ExpiryWriting[string, *Snapshot](ttl),
		}),
	}
}

// PositionsAt implements Provider. Errors are not cached.
func (c *CachedProvider) PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error) {
	key := snapshotKey(instant, loc)
	if snap, ok := c.cache.GetIfPresent(key); ok {
		return snap, nil
	}
	snap, err := c.next.PositionsAt(ctx, instant, loc)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, snap)
	return snap, nil
}

func snapshotKey(instant time.Time, loc model.Location) string {
	return fmt.Sprintf("%d|%.4f|%.4f", instant.Unix(), loc.Latitude, loc.Longitude)
}
