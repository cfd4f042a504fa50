package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTileURL is the upstream basemap. OSM's usage policy requires a
// distinct User-Agent, which the proxy sets on every request.
const DefaultTileURL = "https://tile.openstreetmap.org"

// TileProxy proxies raster basemap tiles from an upstream tile server so the
// browser never talks to the upstream directly.
type TileProxy struct {
	baseURL string
	client  *http.Client
	cache   *TileCache
}

// NewTileProxy creates a basemap tile proxy backed by the given cache.
// cache may be nil to disable caching.
func NewTileProxy(baseURL string, cache *TileCache) *TileProxy {
	if baseURL == "" {
		baseURL = DefaultTileURL
	}
	return &TileProxy{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   cache,
	}
}

// Fetch retrieves a tile from the cache or the upstream server.
func (p *TileProxy) Fetch(ctx context.Context, z, x, y int) ([]byte, error) {
	if p.cache != nil {
		if cached := p.cache.Get(z, x, y); cached != nil {
			return cached, nil
		}
	}

	url := fmt.Sprintf("%s/%d/%d/%d.png", p.baseURL, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: create tile request")
	}
	req.Header.Set("User-Agent", "cng-atlas/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: fetch tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("dashboard: tile upstream returned %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: read tile body")
	}

	if p.cache != nil {
		p.cache.Put(z, x, y, data)
	}

	zap.L().Debug("fetched basemap tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, nil
}
