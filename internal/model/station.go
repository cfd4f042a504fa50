// Package model defines the core domain types shared across the pipeline.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// StationStatus describes the operational state of a station.
type StationStatus string

const (
	StationOperational StationStatus = "operational"
	StationPlanned     StationStatus = "planned"
	StationClosed      StationStatus = "closed"
)

// GeocodeStatus tracks where a station is in the geocoding lifecycle.
type GeocodeStatus string

const (
	// GeocodePending means the station has an address but no coordinates yet.
	GeocodePending GeocodeStatus = "pending"
	// GeocodeMatched means a provider resolved the address to coordinates.
	GeocodeMatched GeocodeStatus = "matched"
	// GeocodeUnmatched means every provider failed; the record is flagged, not dropped.
	GeocodeUnmatched GeocodeStatus = "unmatched"
	// GeocodeManual means coordinates were supplied by the source or an operator.
	GeocodeManual GeocodeStatus = "manual"
)

// ParseGeocodeStatus converts a string into a GeocodeStatus.
func ParseGeocodeStatus(s string) (GeocodeStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return GeocodePending, nil
	case "matched":
		return GeocodeMatched, nil
	case "unmatched":
		return GeocodeUnmatched, nil
	case "manual":
		return GeocodeManual, nil
	default:
		return "", eris.Errorf("unknown geocode status: %q (valid: pending, matched, unmatched, manual)", s)
	}
}

// Station is a single CNG fueling station record. Stations are keyed by
// (source, source_key) so re-running a scraper upserts instead of duplicating.
type Station struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	SourceKey string        `json:"source_key"`
	Name      string        `json:"name"`
	Operator  string        `json:"operator,omitempty"`
	Address   string        `json:"address,omitempty"`
	City      string        `json:"city,omitempty"`
	State     string        `json:"state,omitempty"`
	LGA       string        `json:"lga,omitempty"`
	Status    StationStatus `json:"status"`

	Latitude       float64       `json:"latitude,omitempty"`
	Longitude      float64       `json:"longitude,omitempty"`
	GeocodeStatus  GeocodeStatus `json:"geocode_status"`
	GeocodeSource  string        `json:"geocode_source,omitempty"`
	GeocodeQuality string        `json:"geocode_quality,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoordinates reports whether the station carries usable coordinates.
func (s Station) HasCoordinates() bool {
	return (s.GeocodeStatus == GeocodeMatched || s.GeocodeStatus == GeocodeManual) &&
		(s.Latitude != 0 || s.Longitude != 0)
}

// OneLineAddress joins the address components into a single geocodable line.
func (s Station) OneLineAddress() string {
	parts := []string{s.Address, s.City, s.LGA, s.State, "Nigeria"}
	var nonEmpty []string
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		nonEmpty = append(nonEmpty, p)
	}
	return strings.Join(nonEmpty, ", ")
}

// SyncResult holds the outcome of a single source sync.
type SyncResult struct {
	RowsSynced int            `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SyncRecord is one entry in the source sync log.
type SyncRecord struct {
	ID          int64      `json:"id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	RowsSynced  int        `json:"rows_synced"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
