package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport redirects every request to the test server, so the
// hard-coded Google URL resolves locally.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	base := []Option{
		WithNominatimURL(srv.URL),
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{target: target}}),
		WithRateLimit(1000),
	}
	return NewClient(append(base, opts...)...)
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*Result
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*Result)}
}

func (c *memCache) Get(_ context.Context, key string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (c *memCache) Put(_ context.Context, key string, result *Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *result
	c.entries[key] = &cp
	return nil
}

const nominatimMatchBody = `[{"lat":"6.6018","lon":"3.3515","class":"amenity","type":"fuel","addresstype":"amenity","display_name":"NIPCO, Ikeja, Lagos, Nigeria"}]`

func TestGeocode_NominatimMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "ng", r.URL.Query().Get("countrycodes"))
		assert.Contains(t, r.URL.Query().Get("q"), "Nigeria")
		w.Write([]byte(nominatimMatchBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	result, err := c.Geocode(context.Background(), AddressInput{Street: "Obafemi Awolowo Way", City: "Ikeja", State: "Lagos"})
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.InDelta(t, 6.6018, result.Latitude, 0.0001)
	assert.InDelta(t, 3.3515, result.Longitude, 0.0001)
	assert.Equal(t, "nominatim", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestGeocode_FallbackToGoogle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Write([]byte(`[]`))
		case "/maps/api/geocode/json":
			assert.Equal(t, "ng", r.URL.Query().Get("region"))
			w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":9.0765,"lng":7.3986},"location_type":"GEOMETRIC_CENTER"}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithGoogleAPIKey("test-key"))
	result, err := c.Geocode(context.Background(), AddressInput{Street: "Plot 23 Cadastral Zone", City: "Abuja"})
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "centroid", result.Quality)
}

func TestGeocode_Unmatched_CachesMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	cache := newMemCache()
	c := newTestClient(t, srv, WithCache(cache))

	addr := AddressInput{Street: "Nowhere Close", State: "Kogi"}
	result, err := c.Geocode(context.Background(), addr)
	require.NoError(t, err)
	assert.False(t, result.Matched)

	cached, err := cache.Get(context.Background(), cacheKey(addr))
	require.NoError(t, err)
	require.NotNil(t, cached, "non-match should be cached")
	assert.False(t, cached.Matched)
}

func TestGeocode_CacheHit_SkipsProviders(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(nominatimMatchBody))
	}))
	defer srv.Close()

	cache := newMemCache()
	addr := AddressInput{Street: "Ring Road", City: "Ibadan", State: "Oyo"}
	require.NoError(t, cache.Put(context.Background(), cacheKey(addr), &Result{
		Latitude: 7.3775, Longitude: 3.947, Source: "nominatim", Quality: "range", Matched: true,
	}))

	c := newTestClient(t, srv, WithCache(cache))
	result, err := c.Geocode(context.Background(), addr)
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.InDelta(t, 7.3775, result.Latitude, 0.0001)
	assert.Zero(t, calls, "cached address must not hit the network")
}

func TestGeocode_NominatimError_FallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/maps/api/geocode/json":
			w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":4.8156,"lng":7.0498},"location_type":"ROOFTOP"}}]}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithGoogleAPIKey("test-key"))
	result, err := c.Geocode(context.Background(), AddressInput{Street: "Aba Road", City: "Port Harcourt", State: "Rivers"})
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
}

func TestGeocode_ProviderOutage_ReturnsErrorUncached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := newMemCache()
	c := newTestClient(t, srv, WithCache(cache))

	addr := AddressInput{Street: "Aba Road", City: "Port Harcourt", State: "Rivers"}
	_, err := c.Geocode(context.Background(), addr)
	require.Error(t, err, "an outage is not a non-match")
	assert.Contains(t, err.Error(), "no provider reachable")

	cached, err := cache.Get(context.Background(), cacheKey(addr))
	require.NoError(t, err)
	assert.Nil(t, cached, "an outage must not poison the cache")
}

func TestGeocode_BothProvidersDown_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithGoogleAPIKey("test-key"))
	_, err := c.Geocode(context.Background(), AddressInput{Street: "Ring Road", State: "Oyo"})
	require.Error(t, err)
}

func TestGeocode_NominatimDown_GoogleEmpty_IsUnmatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/maps/api/geocode/json":
			w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		}
	}))
	defer srv.Close()

	cache := newMemCache()
	c := newTestClient(t, srv, WithGoogleAPIKey("test-key"), WithCache(cache))

	addr := AddressInput{Street: "Nowhere Close", State: "Kogi"}
	result, err := c.Geocode(context.Background(), addr)
	require.NoError(t, err, "google answered empty, so the address is a real non-match")
	assert.False(t, result.Matched)

	cached, err := cache.Get(context.Background(), cacheKey(addr))
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.False(t, cached.Matched)
}

func TestBatchGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Unknown Street, Nigeria" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(nominatimMatchBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	results, err := c.BatchGeocode(context.Background(), []AddressInput{
		{ID: "a", Street: "Obafemi Awolowo Way", City: "Ikeja", State: "Lagos"},
		{ID: "b", Street: "Unknown Street"},
	}, 4)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "a", results[0].Input.ID)
	assert.True(t, results[0].Result.Matched)

	require.NoError(t, results[1].Err)
	assert.False(t, results[1].Result.Matched)
}

func TestBatchGeocode_OutageLandsInResultErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	results, err := c.BatchGeocode(context.Background(), []AddressInput{
		{ID: "a", Street: "Aba Road", State: "Rivers"},
	}, 2)
	require.NoError(t, err, "individual outages do not fail the batch")
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Nil(t, results[0].Result)
}

func TestBatchGeocode_FloorsConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nominatimMatchBody))
	}))
	defer srv.Close()

	// A zero limit must not deadlock.
	c := newTestClient(t, srv)
	results, err := c.BatchGeocode(context.Background(), []AddressInput{
		{Street: "Obafemi Awolowo Way", State: "Lagos"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Result.Matched)
}

func TestBatchGeocode_Empty(t *testing.T) {
	c := NewClient()
	results, err := c.BatchGeocode(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestCacheKey_Normalization(t *testing.T) {
	a := cacheKey(AddressInput{Street: " Ring Road ", City: "IBADAN", State: "Oyo"})
	b := cacheKey(AddressInput{Street: "ring road", City: "ibadan", State: "oyo"})
	assert.Equal(t, a, b)

	c := cacheKey(AddressInput{Street: "Ring Road", City: "Ibadan", State: "Ogun"})
	assert.NotEqual(t, a, c)
}

func TestFormatOneLine(t *testing.T) {
	assert.Equal(t, "Ring Road, Ibadan, Oyo, Nigeria",
		formatOneLine(AddressInput{Street: "Ring Road", City: "Ibadan", State: "Oyo"}))
	assert.Equal(t, "Ikeja, Nigeria", formatOneLine(AddressInput{City: "Ikeja"}))
	assert.Equal(t, "", formatOneLine(AddressInput{}))
}
