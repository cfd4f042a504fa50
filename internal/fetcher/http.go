package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter // per-host; unlisted hosts share a fallback limiter
}

// DefaultRateLimiters returns per-host limits for the hosts the pipeline
// talks to. Nominatim's usage policy is one request per second, Overpass
// throttles aggressively, and the gov.ng portals fall over easily.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"nominatim.openstreetmap.org": rate.NewLimiter(1, 1),
		"overpass-api.de":             rate.NewLimiter(1, 2),
		"maps.googleapis.com":         rate.NewLimiter(10, 10),
		"nmdpra.gov.ng":               rate.NewLimiter(2, 2),
		"pcngi.gov.ng":                rate.NewLimiter(2, 2),
		"geodata.ucdavis.edu":         rate.NewLimiter(2, 2),
	}
}

// HTTPFetcher downloads over HTTP with retries, exponential backoff, and
// per-host rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	agent    string
	retries  int
	hosts    map[string]*rate.Limiter
	fallback *rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher. Zero-value options get sensible
// defaults; pass RateLimiters to override DefaultRateLimiters.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cng-atlas/1.0"
	}
	hosts := opts.RateLimiters
	if hosts == nil {
		hosts = DefaultRateLimiters()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		agent:    opts.UserAgent,
		retries:  opts.MaxRetries,
		hosts:    hosts,
		fallback: rate.NewLimiter(5, 5),
	}
}

// Download fetches the URL and returns the response body. The caller closes it.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: build request")
	}
	req.Header.Set("User-Agent", f.agent)

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetcher: status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into path and returns bytes written.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, body)
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}

// do runs the request under the host's rate limiter, retrying 429s, 5xx
// responses, and transport errors.
func (f *HTTPFetcher) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiter(req.URL)

	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limit wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("fetcher: request failed",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if !f.sleep(ctx, backoffFor(attempt, 0)) {
				break
			}
			continue
		}

		var delay time.Duration
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: 429 from %s", req.URL.String())
			zap.L().Warn("fetcher: rate limited by host",
				zap.String("url", req.URL.String()),
				zap.Duration("retry_after", retryAfter),
				zap.Int("attempt", attempt+1))
			delay = backoffFor(attempt, retryAfter)
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: status %d from %s", resp.StatusCode, req.URL.String())
			zap.L().Warn("fetcher: server error",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			delay = backoffFor(attempt, 0)
		default:
			return resp, nil
		}

		if !f.sleep(ctx, delay) {
			break
		}
	}
	return nil, eris.Wrap(lastErr, "fetcher: retries exhausted")
}

func (f *HTTPFetcher) limiter(u *url.URL) *rate.Limiter {
	if lim, ok := f.hosts[u.Host]; ok {
		return lim
	}
	return f.fallback
}

// backoffFor doubles a one-second base per attempt, adds jitter, and caps
// at 30s. A host-supplied Retry-After wins when it is longer.
func backoffFor(attempt int, retryAfter time.Duration) time.Duration {
	const maxDelay = 30 * time.Second
	d := time.Second << uint(attempt)
	if d > maxDelay {
		d = maxDelay
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))
	if retryAfter > d {
		d = retryAfter
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func (f *HTTPFetcher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
