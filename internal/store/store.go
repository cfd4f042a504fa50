// Package store persists stations, sync history, geocode cache entries, and
// admin boundary geometries behind a driver-agnostic interface.
package store

import (
	"context"
	"time"

	"github.com/harmattan-labs/cng-atlas/internal/model"
)

// StationFilter specifies criteria for listing stations.
type StationFilter struct {
	State         string              `json:"state,omitempty"`
	LGA           string              `json:"lga,omitempty"`
	Name          string              `json:"name,omitempty"` // substring, case-insensitive
	Operator      string              `json:"operator,omitempty"`
	Source        string              `json:"source,omitempty"`
	Status        model.StationStatus `json:"status,omitempty"`
	GeocodeStatus model.GeocodeStatus `json:"geocode_status,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	Offset        int                 `json:"offset,omitempty"`
}

// IsZero reports whether the filter constrains nothing.
func (f StationFilter) IsZero() bool {
	return f == StationFilter{}
}

// CachedGeocode is a persisted geocode result, including non-matches.
type CachedGeocode struct {
	Hash      string    `json:"hash"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Source    string    `json:"source"`
	Quality   string    `json:"quality"`
	Matched   bool      `json:"matched"`
	CachedAt  time.Time `json:"cached_at"`
}

// Boundary is an admin boundary polygon stored as EWKB.
// Level is "state" or "lga"; Parent is the owning state for LGAs.
type Boundary struct {
	Level  string `json:"level"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
	Geom   []byte `json:"-"`
}

// FilterColumn names a station column whose distinct values feed the
// dashboard filter widgets.
type FilterColumn string

const (
	FilterState    FilterColumn = "state"
	FilterLGA      FilterColumn = "lga"
	FilterName     FilterColumn = "name"
	FilterSource   FilterColumn = "source"
	FilterOperator FilterColumn = "operator"
)

// Store defines the persistence interface for the station pipeline.
type Store interface {
	// Stations
	UpsertStations(ctx context.Context, stations []model.Station) (int, error)
	ListStations(ctx context.Context, filter StationFilter) ([]model.Station, error)
	PendingGeocodes(ctx context.Context, limit int) ([]model.Station, error)
	RecordGeocode(ctx context.Context, stationID string, lat, lon float64, status model.GeocodeStatus, source, quality string) error
	UpdateRegion(ctx context.Context, stationID, state, lga string) error
	DistinctValues(ctx context.Context, col FilterColumn) ([]string, error)
	CountByGeocodeStatus(ctx context.Context) (map[model.GeocodeStatus]int, error)

	// Sync log
	StartSync(ctx context.Context, source string) (int64, error)
	CompleteSync(ctx context.Context, syncID int64, result *model.SyncResult) error
	FailSync(ctx context.Context, syncID int64, errMsg string) error
	LastSuccess(ctx context.Context, source string) (*time.Time, error)
	ListSyncs(ctx context.Context, limit int) ([]model.SyncRecord, error)

	// Geocode cache
	GetCachedGeocode(ctx context.Context, hash string, ttl time.Duration) (*CachedGeocode, error)
	PutCachedGeocode(ctx context.Context, entry *CachedGeocode) error

	// Boundaries
	PutBoundaries(ctx context.Context, boundaries []Boundary) error
	ListBoundaries(ctx context.Context, level string) ([]Boundary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
