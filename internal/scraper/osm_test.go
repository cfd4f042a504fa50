package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

const overpassBody = `{
  "version": 0.6,
  "elements": [
    {
      "type": "node", "id": 9912345, "lat": 6.6018, "lon": 3.3515,
      "tags": {
        "amenity": "fuel", "fuel:cng": "yes", "name": "NIPCO CNG Ikeja",
        "operator": "NIPCO", "addr:housenumber": "23",
        "addr:street": "Obafemi Awolowo Way", "addr:city": "Ikeja",
        "addr:state": "Lagos"
      }
    },
    {
      "type": "way", "id": 4401, "center": {"lat": 9.0765, "lon": 7.3986},
      "tags": {"amenity": "fuel", "fuel:cng": "yes", "operator": "Gasland", "construction": "yes"}
    },
    {
      "type": "node", "id": 77, "lat": 0, "lon": 0,
      "tags": {"amenity": "fuel", "fuel:cng": "yes", "name": "Broken Node"}
    },
    {
      "type": "node", "id": 78, "lat": 7.3775, "lon": 3.947,
      "tags": {"amenity": "fuel", "fuel:cng": "yes", "disused": "yes"}
    }
  ]
}`

func TestOSM_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("data")
		w.Write([]byte(overpassBody))
	}))
	defer srv.Close()

	src := NewOSM(srv.URL, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test"}))
	stations, err := src.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stations, 3, "zero-coordinate elements dropped")

	assert.Contains(t, gotQuery, `"fuel:cng"="yes"`)
	assert.Contains(t, gotQuery, `"ISO3166-1"="NG"`)

	node := stations[0]
	assert.Equal(t, "node-9912345", node.SourceKey)
	assert.Equal(t, "NIPCO CNG Ikeja", node.Name)
	assert.Equal(t, "NIPCO", node.Operator)
	assert.Equal(t, "23 Obafemi Awolowo Way", node.Address)
	assert.Equal(t, "Ikeja", node.City)
	assert.Equal(t, "Lagos", node.State)
	assert.Equal(t, model.StationOperational, node.Status)
	assert.InDelta(t, 6.6018, node.Latitude, 1e-9)
	assert.InDelta(t, 3.3515, node.Longitude, 1e-9)
	assert.Equal(t, model.GeocodeManual, node.GeocodeStatus)
	assert.Equal(t, "osm", node.GeocodeSource)
	assert.Equal(t, "rooftop", node.GeocodeQuality)

	// Ways carry coordinates in "center"; name falls back to operator.
	way := stations[1]
	assert.Equal(t, "way-4401", way.SourceKey)
	assert.Equal(t, "Gasland", way.Name)
	assert.Equal(t, model.StationPlanned, way.Status)
	assert.InDelta(t, 9.0765, way.Latitude, 1e-9)
	assert.InDelta(t, 7.3986, way.Longitude, 1e-9)

	// Untagged name gets the generic placeholder; disused sites read closed.
	disused := stations[2]
	assert.Equal(t, "CNG Station", disused.Name)
	assert.Equal(t, model.StationClosed, disused.Status)
}

func TestOSM_Fetch_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	src := NewOSM(srv.URL, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: "test"}))
	_, err := src.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode overpass response")
}

func TestOSMStatus(t *testing.T) {
	tests := []struct {
		tags map[string]string
		want model.StationStatus
	}{
		{map[string]string{}, model.StationOperational},
		{map[string]string{"construction": "yes"}, model.StationPlanned},
		{map[string]string{"proposed": "fuel"}, model.StationPlanned},
		{map[string]string{"disused": "yes"}, model.StationClosed},
		{map[string]string{"abandoned": "yes"}, model.StationClosed},
		{map[string]string{"disused": "no"}, model.StationOperational},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, osmStatus(tt.tags))
	}
}

func TestOSMAddress(t *testing.T) {
	assert.Equal(t, "23 Obafemi Awolowo Way", osmAddress(map[string]string{
		"addr:housenumber": "23", "addr:street": "Obafemi Awolowo Way",
	}))
	assert.Equal(t, "Ring Road", osmAddress(map[string]string{"addr:street": "Ring Road"}))
	assert.Equal(t, "", osmAddress(nil))
}
