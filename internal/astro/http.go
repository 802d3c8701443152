package astro

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/resilience"
)

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

// HTTPProvider fetches snapshots from an ephemeris service exposing
// GET {base}/positions?instant=&lat=&lon=&tz=.
type HTTPProvider struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPProvider creates an HTTPProvider. Timeout defaults to 10s.
func NewHTTPProvider(opts HTTPOptions) *HTTPProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "rectify-cli"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &HTTPProvider{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// PositionsAt implements Provider. 5xx and 429 responses are retried.
func (p *HTTPProvider) PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error) {
	q := url.Values{}
	q.Set("instant", instant.UTC().Format(time.RFC3339))
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 6, 64))
	if loc.Timezone != "" {
		q.Set("tz", loc.Timezone)
	}
	endpoint := p.opts.BaseURL + "/positions?" + q.Encode()

	retry := p.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("astro", "positions")
	}
	snap, err := resilience.Retry(ctx, retry, func(ctx context.Context) (*Snapshot, error) {
		return p.fetch(ctx, endpoint)
	})
	if err != nil {
		return nil, eris.Wrap(err, "astro: http positions")
	}
	if snap.Instant.IsZero() {
		snap.Instant = instant.UTC()
	}
	return snap, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, endpoint string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.opts.UserAgent)
	if p.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return DecodeSnapshot(body)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
