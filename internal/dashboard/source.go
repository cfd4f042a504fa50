package dashboard

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// DataSource supplies stations to the dashboard handlers. Two
// implementations exist: one over the live store and one over a pre-built
// GeoJSON export, so the dashboard can run with no database at all.
type DataSource interface {
	Stations(ctx context.Context, filter store.StationFilter) ([]model.Station, error)

	// Distinct returns the sorted distinct non-empty values of col among
	// stations matching filter.
	Distinct(ctx context.Context, col store.FilterColumn, filter store.StationFilter) ([]string, error)
}

// StoreSource serves stations straight from the store.
type StoreSource struct {
	store store.Store
}

// NewStoreSource wraps a store as a DataSource.
func NewStoreSource(st store.Store) *StoreSource {
	return &StoreSource{store: st}
}

func (s *StoreSource) Stations(ctx context.Context, filter store.StationFilter) ([]model.Station, error) {
	return s.store.ListStations(ctx, filter)
}

// Distinct uses the store's indexed distinct query when no other filter is
// active (the common first page load); scoped lists fall back to a filtered
// scan.
func (s *StoreSource) Distinct(ctx context.Context, col store.FilterColumn, filter store.StationFilter) ([]string, error) {
	if filter.IsZero() {
		return s.store.DistinctValues(ctx, col)
	}
	stations, err := s.store.ListStations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return distinctValues(stations, col)
}

// StaticSource serves a fixed station slice, filtering in memory with the
// same semantics the store applies: exact match on state/lga/source/status,
// case-insensitive substring on name.
type StaticSource struct {
	stations []model.Station
}

// NewStaticSource wraps a station slice as a DataSource.
func NewStaticSource(stations []model.Station) *StaticSource {
	return &StaticSource{stations: stations}
}

func (s *StaticSource) Stations(_ context.Context, filter store.StationFilter) ([]model.Station, error) {
	var out []model.Station
	for _, st := range s.stations {
		if !matchesFilter(st, filter) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *StaticSource) Distinct(ctx context.Context, col store.FilterColumn, filter store.StationFilter) ([]string, error) {
	stations, err := s.Stations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return distinctValues(stations, col)
}

func matchesFilter(s model.Station, f store.StationFilter) bool {
	if f.State != "" && !strings.EqualFold(s.State, f.State) {
		return false
	}
	if f.LGA != "" && !strings.EqualFold(s.LGA, f.LGA) {
		return false
	}
	if f.Operator != "" && !strings.EqualFold(s.Operator, f.Operator) {
		return false
	}
	if f.Source != "" && s.Source != f.Source {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.GeocodeStatus != "" && s.GeocodeStatus != f.GeocodeStatus {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Name)) {
		return false
	}
	return true
}

// distinctValues collects the sorted distinct non-empty values of col,
// matching the ordering of the store's DISTINCT query.
func distinctValues(stations []model.Station, col store.FilterColumn) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, s := range stations {
		var v string
		switch col {
		case store.FilterState:
			v = s.State
		case store.FilterLGA:
			v = s.LGA
		case store.FilterName:
			v = s.Name
		case store.FilterOperator:
			v = s.Operator
		case store.FilterSource:
			v = s.Source
		default:
			return nil, eris.Errorf("dashboard: unsupported filter column %q", col)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
