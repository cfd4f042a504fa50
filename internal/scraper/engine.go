package scraper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

// fetchTimeout bounds a single source run. The NMDPRA registry is a few MB;
// anything longer than this means the upstream has hung.
const fetchTimeout = 30 * time.Minute

// Engine orchestrates source runs and persists the results.
type Engine struct {
	store   store.Store
	reg     *Registry
	tempDir string
	limit   int
}

// RunOpts configures which sources to run and how.
type RunOpts struct {
	Category *Category // restrict to a specific category
	Sources  []string  // restrict to specific source names
	Force    bool      // ignore ShouldRun() scheduling
}

// NewEngine creates a new scrape engine. limit caps concurrent source runs.
func NewEngine(st store.Store, reg *Registry, tempDir string, limit int) *Engine {
	if limit <= 0 {
		limit = 4
	}
	return &Engine{store: st, reg: reg, tempDir: tempDir, limit: limit}
}

// Run iterates over selected sources, checks scheduling, and runs fetches in
// parallel. An individual source failure is recorded but does not abort the
// other sources.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "scraper.engine"))
	now := time.Now().UTC()

	sources, err := e.reg.Select(opts.Category, opts.Sources)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		log.Info("no sources selected")
		return nil
	}

	log.Info("selected sources", zap.Int("count", len(sources)))

	var synced, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	for _, s := range sources {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			sLog := log.With(
				zap.String("source", s.Name()),
				zap.String("category", s.Category().String()),
				zap.String("cadence", string(s.Cadence())),
			)

			if !opts.Force {
				lastSync, err := e.store.LastSuccess(gctx, s.Name())
				if err != nil {
					return eris.Wrapf(err, "engine: check last sync for %s", s.Name())
				}

				if !s.ShouldRun(now, lastSync) {
					sLog.Debug("skipping (not due)")
					skipped.Add(1)
					return nil
				}
			}

			sLog.Info("starting scrape")
			syncID, err := e.store.StartSync(gctx, s.Name())
			if err != nil {
				return eris.Wrapf(err, "engine: start sync log for %s", s.Name())
			}

			start := time.Now()
			fetchCtx, fetchCancel := context.WithTimeout(gctx, fetchTimeout)
			stations, err := s.Fetch(fetchCtx, e.tempDir)
			fetchCancel()
			elapsed := time.Since(start)

			if err != nil {
				sLog.Error("scrape failed", zap.Error(err), zap.Duration("elapsed", elapsed))
				if logErr := e.store.FailSync(gctx, syncID, err.Error()); logErr != nil {
					sLog.Error("failed to record sync failure", zap.Error(logErr))
				}
				failed.Add(1)
				return nil
			}

			normalizeStations(s.Name(), stations)

			n, err := e.store.UpsertStations(gctx, stations)
			if err != nil {
				sLog.Error("upsert failed", zap.Error(err))
				if logErr := e.store.FailSync(gctx, syncID, err.Error()); logErr != nil {
					sLog.Error("failed to record sync failure", zap.Error(logErr))
				}
				failed.Add(1)
				return nil
			}

			if err := e.store.CompleteSync(gctx, syncID, &model.SyncResult{RowsSynced: n}); err != nil {
				sLog.Error("failed to record sync completion", zap.Error(err))
			}

			sLog.Info("scrape complete",
				zap.Int("rows", n),
				zap.Duration("elapsed", elapsed),
			)
			synced.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("engine run complete",
		zap.Int64("synced", synced.Load()),
		zap.Int64("skipped", skipped.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// normalizeStations stamps the source name and canonicalizes names and state
// spellings before persistence, so filter values stay consistent across
// sources.
func normalizeStations(source string, stations []model.Station) {
	for i := range stations {
		st := &stations[i]
		if st.Source == "" {
			st.Source = source
		}
		st.Name = model.NormalizeName(st.Name)
		st.Operator = model.NormalizeName(st.Operator)
		st.State = model.NormalizeState(st.State)
		st.City = model.NormalizeName(st.City)
	}
}
