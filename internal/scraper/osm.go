package scraper

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// overpassQuery selects fuel amenities tagged for CNG within Nigeria.
// Ways and relations are collapsed to their center point.
const overpassQuery = `[out:json][timeout:120];
area["ISO3166-1"="NG"][admin_level=2]->.ng;
(
  nwr["amenity"="fuel"]["fuel:cng"="yes"](area.ng);
  nwr["amenity"="compressed_air"]["fuel:cng"="yes"](area.ng);
);
out center tags;`

// OSM scrapes CNG-capable fuel stations from OpenStreetMap via the Overpass
// API. Elements carry their own coordinates, so rows arrive pre-matched and
// skip the geocoding queue.
type OSM struct {
	overpassURL string
	http        *fetcher.HTTPFetcher
}

// NewOSM creates the OSM source.
func NewOSM(overpassURL string, httpf *fetcher.HTTPFetcher) *OSM {
	return &OSM{overpassURL: overpassURL, http: httpf}
}

func (s *OSM) Name() string       { return "osm" }
func (s *OSM) Category() Category { return Community }
func (s *OSM) Cadence() Cadence   { return Weekly }

func (s *OSM) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return WeeklySchedule(now, lastSync)
}

// overpassResponse is the Overpass API JSON envelope.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Fetch queries Overpass and maps elements to stations.
func (s *OSM) Fetch(ctx context.Context, _ string) ([]model.Station, error) {
	body, err := s.post(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[overpassResponse](body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: decode overpass response")
	}

	stations := make([]model.Station, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Center != nil {
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		if lat == 0 && lon == 0 {
			continue
		}

		name := el.Tags["name"]
		if name == "" {
			name = el.Tags["operator"]
		}
		if name == "" {
			name = "CNG Station"
		}

		stations = append(stations, model.Station{
			Source:         s.Name(),
			SourceKey:      fmt.Sprintf("%s-%d", el.Type, el.ID),
			Name:           name,
			Operator:       el.Tags["operator"],
			Address:        osmAddress(el.Tags),
			City:           el.Tags["addr:city"],
			State:          el.Tags["addr:state"],
			Status:         osmStatus(el.Tags),
			Latitude:       lat,
			Longitude:      lon,
			GeocodeStatus:  model.GeocodeManual,
			GeocodeSource:  "osm",
			GeocodeQuality: "rooftop",
		})
	}

	zap.L().Info("overpass query complete", zap.Int("stations", len(stations)))
	return stations, nil
}

// post sends the Overpass QL query in the "data" parameter through the
// rate-limited HTTP fetcher. Overpass accepts the query by GET as well.
func (s *OSM) post(ctx context.Context) (io.ReadCloser, error) {
	form := url.Values{"data": {overpassQuery}}
	endpoint := s.overpassURL + "?" + form.Encode()
	body, err := s.http.Download(ctx, endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "osm: overpass request")
	}
	return body, nil
}

// osmAddress assembles a street address from addr:* tags.
func osmAddress(tags map[string]string) string {
	var parts []string
	if v := tags["addr:housenumber"]; v != "" {
		parts = append(parts, v)
	}
	if v := tags["addr:street"]; v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// osmStatus maps OSM lifecycle tags to the station status taxonomy.
func osmStatus(tags map[string]string) model.StationStatus {
	switch {
	case tags["construction"] != "" || tags["proposed"] != "":
		return model.StationPlanned
	case tags["disused"] == "yes" || tags["abandoned"] == "yes":
		return model.StationClosed
	default:
		return model.StationOperational
	}
}
