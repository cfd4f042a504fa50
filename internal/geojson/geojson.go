// Package geojson converts station records to and from GeoJSON
// FeatureCollections for export and for serving a pre-built file.
package geojson

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// DefaultExportFile is the conventional export filename.
const DefaultExportFile = "cng_locations_ng.geojson"

// BuildOptions controls which stations become features.
type BuildOptions struct {
	// IncludeUnmatched adds stations without coordinates as null-geometry
	// features. Off by default: most consumers expect every feature to be
	// plottable.
	IncludeUnmatched bool
}

// Build converts stations into a FeatureCollection. Stations without
// coordinates are skipped unless opts.IncludeUnmatched is set.
func Build(stations []model.Station, opts BuildOptions) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, s := range stations {
		if !s.HasCoordinates() && !opts.IncludeUnmatched {
			continue
		}

		var g geom.T
		if s.HasCoordinates() {
			g = geom.NewPointFlat(geom.XY, []float64{s.Longitude, s.Latitude}).SetSRID(4326)
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.ID,
			Geometry: g,
			Properties: map[string]any{
				"name":            s.Name,
				"operator":        s.Operator,
				"address":         s.Address,
				"city":            s.City,
				"state":           s.State,
				"lga":             s.LGA,
				"source":          s.Source,
				"source_key":      s.SourceKey,
				"status":          string(s.Status),
				"geocode_status":  string(s.GeocodeStatus),
				"geocode_source":  s.GeocodeSource,
				"geocode_quality": s.GeocodeQuality,
			},
		})
	}
	return fc
}

// WriteFile builds a FeatureCollection and writes it to path.
// Returns the number of features written.
func WriteFile(path string, stations []model.Station, opts BuildOptions) (int, error) {
	fc := Build(stations, opts)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return 0, eris.Wrap(err, "geojson: marshal feature collection")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, eris.Wrapf(err, "geojson: write %s", path)
	}

	zap.L().Info("geojson written",
		zap.String("path", path),
		zap.Int("features", len(fc.Features)),
	)
	return len(fc.Features), nil
}

// ReadFile loads a GeoJSON file and converts its features back to stations.
// Features produced by other tools are tolerated: missing properties come
// back empty, and non-point geometries are skipped.
func ReadFile(path string) ([]model.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geojson: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geojson: parse %s", path)
	}

	stations := make([]model.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		s := featureToStation(f)
		if s == nil {
			continue
		}
		stations = append(stations, *s)
	}
	return stations, nil
}

func featureToStation(f *geojson.Feature) *model.Station {
	pt, ok := f.Geometry.(*geom.Point)
	if !ok || pt == nil {
		return nil
	}
	coords := pt.Coords()

	s := &model.Station{
		ID:             f.ID,
		Longitude:      coords.X(),
		Latitude:       coords.Y(),
		Name:           stringProp(f, "name"),
		Operator:       stringProp(f, "operator"),
		Address:        stringProp(f, "address"),
		City:           stringProp(f, "city"),
		State:          stringProp(f, "state"),
		LGA:            stringProp(f, "lga"),
		Source:         stringProp(f, "source"),
		SourceKey:      stringProp(f, "source_key"),
		Status:         model.StationStatus(stringProp(f, "status")),
		GeocodeSource:  stringProp(f, "geocode_source"),
		GeocodeQuality: stringProp(f, "geocode_quality"),
	}
	if s.Status == "" {
		s.Status = model.StationOperational
	}

	if status, err := model.ParseGeocodeStatus(stringProp(f, "geocode_status")); err == nil {
		s.GeocodeStatus = status
	} else {
		// Anything plotted by a foreign tool counts as matched.
		s.GeocodeStatus = model.GeocodeMatched
	}
	return s
}

func stringProp(f *geojson.Feature, key string) string {
	v, ok := f.Properties[key].(string)
	if !ok {
		return ""
	}
	return v
}
