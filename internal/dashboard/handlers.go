package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/geojson"
	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// Handlers provides the dashboard's HTTP handlers.
type Handlers struct {
	source DataSource
	tiles  *TileProxy
}

// NewHandlers creates a Handlers instance.
func NewHandlers(source DataSource, tiles *TileProxy) *Handlers {
	return &Handlers{source: source, tiles: tiles}
}

// filterFromQuery maps query params onto a station filter.
func filterFromQuery(r *http.Request) store.StationFilter {
	q := r.URL.Query()
	return store.StationFilter{
		State:    q.Get("state"),
		LGA:      q.Get("lga"),
		Name:     q.Get("name"),
		Operator: q.Get("operator"),
		Source:   q.Get("source"),
		Status:   model.StationStatus(q.Get("status")),
	}
}

// HandleStations serves the filtered station set as a GeoJSON
// FeatureCollection. Only plottable stations become features.
func (h *Handlers) HandleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.source.Stations(r.Context(), filterFromQuery(r))
	if err != nil {
		serverError(w, "list stations", err)
		return
	}

	fc := geojson.Build(stations, geojson.BuildOptions{})
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		zap.L().Error("encode stations response", zap.Error(err))
	}
}

// FiltersResponse holds the distinct values for each filter widget.
type FiltersResponse struct {
	States    []string `json:"states"`
	LGAs      []string `json:"lgas"`
	Names     []string `json:"names"`
	Operators []string `json:"operators"`
	Sources   []string `json:"sources"`
}

// HandleFilters serves sorted distinct values per filterable column. Each
// column's values are scoped by the other active filters, so selecting a
// state narrows the LGA and name lists without emptying the state list
// itself.
func (h *Handlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	base := filterFromQuery(r)
	ctx := r.Context()

	resp := FiltersResponse{}
	var err error

	without := func(mutate func(*store.StationFilter)) store.StationFilter {
		f := base
		mutate(&f)
		return f
	}

	if resp.States, err = h.source.Distinct(ctx, store.FilterState, without(func(f *store.StationFilter) { f.State = "" })); err != nil {
		serverError(w, "distinct states", err)
		return
	}
	if resp.LGAs, err = h.source.Distinct(ctx, store.FilterLGA, without(func(f *store.StationFilter) { f.LGA = "" })); err != nil {
		serverError(w, "distinct lgas", err)
		return
	}
	if resp.Names, err = h.source.Distinct(ctx, store.FilterName, without(func(f *store.StationFilter) { f.Name = "" })); err != nil {
		serverError(w, "distinct names", err)
		return
	}
	if resp.Operators, err = h.source.Distinct(ctx, store.FilterOperator, without(func(f *store.StationFilter) { f.Operator = "" })); err != nil {
		serverError(w, "distinct operators", err)
		return
	}
	if resp.Sources, err = h.source.Distinct(ctx, store.FilterSource, without(func(f *store.StationFilter) { f.Source = "" })); err != nil {
		serverError(w, "distinct sources", err)
		return
	}

	writeJSON(w, resp)
}

// MetricsResponse summarizes coverage for the dashboard's metric cards.
type MetricsResponse struct {
	Total         int     `json:"total"`
	Matched       int     `json:"matched"`
	MatchedRate   float64 `json:"matched_rate"`
	StatesCovered int     `json:"states_covered"`
	TopState      string  `json:"top_state"`
	TopStateCount int     `json:"top_state_count"`
	MeanPerState  float64 `json:"mean_per_state"`
}

// HandleMetrics serves summary aggregates over the filtered station set.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	stations, err := h.source.Stations(r.Context(), filterFromQuery(r))
	if err != nil {
		serverError(w, "list stations", err)
		return
	}
	writeJSON(w, computeMetrics(stations))
}

func computeMetrics(stations []model.Station) MetricsResponse {
	m := MetricsResponse{Total: len(stations)}

	byState := make(map[string]int)
	withState := 0
	for _, s := range stations {
		if s.HasCoordinates() {
			m.Matched++
		}
		if s.State != "" {
			byState[s.State]++
			withState++
		}
	}
	if m.Total > 0 {
		m.MatchedRate = float64(m.Matched) / float64(m.Total)
	}

	m.StatesCovered = len(byState)
	for state, count := range byState {
		if count > m.TopStateCount || (count == m.TopStateCount && state < m.TopState) {
			m.TopState, m.TopStateCount = state, count
		}
	}
	if m.StatesCovered > 0 {
		m.MeanPerState = float64(withState) / float64(m.StatesCovered)
	}
	return m
}

// HandleTile proxies one basemap tile.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	data, err := h.tiles.Fetch(r.Context(), z, x, y)
	if err != nil {
		zap.L().Error("basemap tile fetch failed", zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

// HandleIndex serves the embedded map UI.
func (h *Handlers) HandleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func serverError(w http.ResponseWriter, msg string, err error) {
	zap.L().Error(msg, zap.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}
