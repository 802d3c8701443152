package astro

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestHTTPProvider_PositionsAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "1990-05-15T04:00:00Z", r.URL.Query().Get("instant"))
		assert.Equal(t, "51.507400", r.URL.Query().Get("lat"))
		assert.Equal(t, "Europe/London", r.URL.Query().Get("tz"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"planets": {"sun": 30}, "ascendant": 100}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL + "/", APIKey: "secret", Retry: fastRetry()})
	instant := time.Date(1990, 5, 15, 4, 0, 0, 0, time.UTC)
	snap, err := p.PositionsAt(context.Background(), instant, london)
	require.NoError(t, err)
	assert.Equal(t, instant, snap.Instant)
	assert.InDelta(t, 100, snap.Ascendant, 1e-9)
	assert.InDelta(t, 30, snap.Longitudes[Sun], 1e-9)
}

func TestHTTPProvider_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ascendant": 5}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()})
	snap, err := p.PositionsAt(context.Background(), time.Now(), london)
	require.NoError(t, err)
	assert.InDelta(t, 5, snap.Ascendant, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPProvider_PermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad coordinates", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := p.PositionsAt(context.Background(), time.Now(), london)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "bad coordinates")
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, resilience.IsTransient(err))
}

func TestHTTPProvider_ExhaustedRetriesStayTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := p.PositionsAt(context.Background(), time.Now(), london)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestCachedProvider(t *testing.T) {
	var calls atomic.Int32
	next := ProviderFunc(func(_ context.Context, instant time.Time, _ model.Location) (*Snapshot, error) {
		calls.Add(1)
		return &Snapshot{Instant: instant, Ascendant: float64(instant.Minute())}, nil
	})
	c := NewCachedProvider(next, 100, time.Minute)
	ctx := context.Background()
	t0 := time.Date(2000, 1, 1, 6, 0, 0, 0, time.UTC)

	a, err := c.PositionsAt(ctx, t0, london)
	require.NoError(t, err)
	b, err := c.PositionsAt(ctx, t0, london)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.PositionsAt(ctx, t0.Add(5*time.Minute), london)
	require.NoError(t, err)
	_, err = c.PositionsAt(ctx, t0, model.Location{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int32
	next := ProviderFunc(func(_ context.Context, _ time.Time, _ model.Location) (*Snapshot, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("backend down")
		}
		return &Snapshot{}, nil
	})
	c := NewCachedProvider(next, 0, 0)
	t0 := time.Date(2000, 1, 1, 6, 0, 0, 0, time.UTC)

	_, err := c.PositionsAt(context.Background(), t0, london)
	require.Error(t, err)
	_, err = c.PositionsAt(context.Background(), t0, london)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLimitedProvider(t *testing.T) {
	var calls atomic.Int32
	next := ProviderFunc(func(_ context.Context, _ time.Time, _ model.Location) (*Snapshot, error) {
		calls.Add(1)
		return &Snapshot{}, nil
	})
	l := NewLimitedProvider(next, 1, 1)

	_, err := l.PositionsAt(context.Background(), time.Now(), london)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.PositionsAt(ctx, time.Now(), london)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	assert.Equal(t, int32(1), calls.Load())
}
