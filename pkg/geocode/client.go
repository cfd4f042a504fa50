// Package geocode provides address geocoding via Nominatim (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Client geocodes addresses using Nominatim (primary) and Google (fallback).
type Client interface {
	// Geocode geocodes a single address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes multiple addresses with bounded concurrency,
	// respecting provider rate limits.
	BatchGeocode(ctx context.Context, addrs []AddressInput, concurrency int) ([]BatchResult, error)
}

// BatchResult pairs one batch input with its outcome. Err is set when every
// provider failed for that address; the address stays eligible for a retry.
type BatchResult struct {
	Input  AddressInput
	Result *Result
	Err    error
}

// AddressInput represents an address to geocode. Empty components are
// omitted from the query. Country is pinned to Nigeria by the providers.
type AddressInput struct {
	ID     string // Optional identifier for batch correlation
	Street string
	City   string
	State  string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "nominatim" or "google"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Cache stores geocode results keyed by address hash. Get returns
// (nil, nil) on a miss. Implementations cache non-matches too, so a
// known-bad address is not retried every run.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, error)
	Put(ctx context.Context, key string, result *Result) error
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Nominatim and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithNominatimURL overrides the Nominatim base URL, e.g. for a self-hosted
// instance that is not bound by the public usage policy.
func WithNominatimURL(base string) Option {
	return func(g *geocoder) {
		g.nominatimURL = base
	}
}

// WithRateLimit sets the requests-per-second limit for Nominatim calls.
// The public instance allows at most 1 req/s.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(g *geocoder) {
		g.cache = c
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects requests
// without an identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

type geocoder struct {
	httpClient    *http.Client
	nominatimURL  string
	googleKey     string
	userAgent     string
	limiter       *rate.Limiter
	googleLimiter *rate.Limiter
	cache         Cache
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		nominatimURL:  defaultNominatimURL,
		userAgent:     "cng-atlas/1.0",
		limiter:       rate.NewLimiter(1, 1),
		googleLimiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a single address, trying the cache, then Nominatim,
// then Google if configured. An unmatched result means a provider actually
// answered empty; when every provider errors, the error comes back instead,
// uncached, so the address is retried next run.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)
	if cached := g.checkCache(ctx, key); cached != nil {
		return cached, nil
	}

	answered := false

	result, nominatimErr := g.geocodeNominatim(ctx, addr)
	if nominatimErr != nil {
		zap.L().Debug("nominatim geocode failed, trying fallback",
			zap.String("address", formatOneLine(addr)),
			zap.Error(nominatimErr),
		)
	} else {
		if result.Matched {
			g.storeCache(ctx, key, result)
			return result, nil
		}
		answered = true
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr != nil {
			zap.L().Debug("google geocode failed",
				zap.String("address", formatOneLine(addr)),
				zap.Error(googleErr),
			)
		} else {
			if googleResult.Matched {
				g.storeCache(ctx, key, googleResult)
				return googleResult, nil
			}
			answered = true
		}
	}

	if !answered {
		return nil, eris.Wrap(nominatimErr, "geocode: no provider reachable")
	}

	// A provider answered and found nothing. Cache the miss so the address
	// is not retried until the TTL expires.
	miss := &Result{Matched: false}
	g.storeCache(ctx, key, miss)
	return miss, nil
}

// BatchGeocode geocodes addresses concurrently. The providers are rate
// limited inside Geocode, so concurrency overlaps network latency rather
// than multiplying request rate. Per-address failures land in the result,
// not the returned error; the error is reserved for context cancellation.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput, concurrency int) ([]BatchResult, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(addrs))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)

	for i, addr := range addrs {
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := g.Geocode(gctx, addr)
			results[i] = BatchResult{Input: addr, Result: r, Err: err}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return results, eris.Wrap(err, "geocode: batch cancelled")
	}
	return results, nil
}
