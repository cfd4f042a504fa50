package boundary

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// Load downloads the GADM bundle, parses both admin levels, and persists the
// boundary rows. Returns the number of rows stored.
func Load(ctx context.Context, st store.Store, httpf *fetcher.HTTPFetcher, url, cacheDir string) (int, error) {
	statePath, lgaPath, err := Download(ctx, httpf, url, cacheDir)
	if err != nil {
		return 0, err
	}

	states, err := ParseShapefile(statePath, LevelState)
	if err != nil {
		return 0, err
	}
	lgas, err := ParseShapefile(lgaPath, LevelLGA)
	if err != nil {
		return 0, err
	}

	rows := append(states, lgas...)
	if err := st.PutBoundaries(ctx, rows); err != nil {
		return 0, eris.Wrap(err, "boundary: persist boundaries")
	}

	zap.L().Info("boundaries loaded",
		zap.Int("states", len(states)),
		zap.Int("lgas", len(lgas)),
	)
	return len(rows), nil
}

// EnrichResult summarizes one enrichment pass.
type EnrichResult struct {
	Examined  int `json:"examined"`
	Assigned  int `json:"assigned"`
	Unlocated int `json:"unlocated"`
}

// Enricher assigns State and LGA to stations from their coordinates.
type Enricher struct {
	store store.Store
}

// NewEnricher creates an Enricher backed by the given store.
func NewEnricher(st store.Store) *Enricher {
	return &Enricher{store: st}
}

// Run walks every station with coordinates and fills in missing State or LGA
// from the boundary index. Stations that already carry both are left alone,
// so scraped region names win over the polygon lookup.
func (e *Enricher) Run(ctx context.Context) (*EnrichResult, error) {
	lgaRows, err := e.store.ListBoundaries(ctx, LevelLGA)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: load LGA boundaries")
	}
	if len(lgaRows) == 0 {
		return nil, eris.New("boundary: no boundaries loaded; run the load step first")
	}
	lgaIndex, err := NewIndex(lgaRows)
	if err != nil {
		return nil, err
	}

	stateRows, err := e.store.ListBoundaries(ctx, LevelState)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: load state boundaries")
	}
	stateIndex, err := NewIndex(stateRows)
	if err != nil {
		return nil, err
	}

	stations, err := e.store.ListStations(ctx, store.StationFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "boundary: list stations")
	}

	res := &EnrichResult{}
	for _, s := range stations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !s.HasCoordinates() || (s.State != "" && s.LGA != "") {
			continue
		}
		res.Examined++

		state, lga := s.State, s.LGA
		// The LGA lookup yields the state for free via the parent field.
		if name, parent, ok := lgaIndex.Locate(s.Latitude, s.Longitude); ok {
			if lga == "" {
				lga = name
			}
			if state == "" {
				state = parent
			}
		} else if name, _, ok := stateIndex.Locate(s.Latitude, s.Longitude); ok && state == "" {
			state = name
		}

		if state == s.State && lga == s.LGA {
			res.Unlocated++
			continue
		}
		if err := e.store.UpdateRegion(ctx, s.ID, state, lga); err != nil {
			return res, eris.Wrapf(err, "boundary: update region for %s", s.ID)
		}
		res.Assigned++
	}

	zap.L().Info("enrichment complete",
		zap.Int("examined", res.Examined),
		zap.Int("assigned", res.Assigned),
		zap.Int("unlocated", res.Unlocated),
	)
	return res, nil
}
