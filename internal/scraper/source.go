// Package scraper collects CNG station records from upstream sources and
// loads them into the store.
package scraper

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// Category groups sources by provenance.
type Category int

const (
	// Official covers government registries (NMDPRA, PCNGI).
	Official Category = iota + 1
	// Community covers crowd-sourced data (OpenStreetMap).
	Community
	// Manual covers operator-supplied imports.
	Manual
)

// String returns the human-readable category name.
func (c Category) String() string {
	switch c {
	case Official:
		return "official"
	case Community:
		return "community"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "official":
		return Official, nil
	case "community":
		return Community, nil
	case "manual":
		return Manual, nil
	default:
		return 0, eris.Errorf("unknown category: %q (valid: official, community, manual)", s)
	}
}

// Cadence describes how often a source publishes new data.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// Source defines the interface each station data source must implement.
type Source interface {
	// Name returns the unique identifier (e.g., "nmdpra", "pcngi", "osm").
	Name() string

	// Category returns the source provenance: Official, Community, or Manual.
	Category() Category

	// Cadence returns how often the upstream source is updated.
	Cadence() Cadence

	// ShouldRun decides if this source needs scraping given the current time
	// and the time of the last successful sync (nil if never synced).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Fetch downloads and parses the source, returning station records.
	// tempDir is a working directory for downloaded files.
	Fetch(ctx context.Context, tempDir string) ([]model.Station, error)
}
