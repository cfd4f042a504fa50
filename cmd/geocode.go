package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/model"
	"github.com/harmattan-labs/cng-atlas/internal/store"
	"github.com/harmattan-labs/cng-atlas/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode pending stations",
	Long: `Resolve coordinates for stations with geocode status "pending".

Addresses go through Nominatim first, then the Google Geocoding API when an
API key is configured. Stations no provider can place are flagged unmatched
and kept.`,
	RunE: runGeocode,
}

func init() {
	geocodeCmd.Flags().Int("limit", 500, "Max stations to geocode this run")
	rootCmd.AddCommand(geocodeCmd)
}

// storeCache adapts the store's geocode cache table to the geocode.Cache
// interface, applying the configured TTL on reads.
type storeCache struct {
	store store.Store
	ttl   time.Duration
}

func (c *storeCache) Get(ctx context.Context, key string) (*geocode.Result, error) {
	entry, err := c.store.GetCachedGeocode(ctx, key, c.ttl)
	if err != nil || entry == nil {
		return nil, err
	}
	return &geocode.Result{
		Latitude:  entry.Latitude,
		Longitude: entry.Longitude,
		Source:    entry.Source,
		Quality:   entry.Quality,
		Matched:   entry.Matched,
	}, nil
}

func (c *storeCache) Put(ctx context.Context, key string, result *geocode.Result) error {
	return c.store.PutCachedGeocode(ctx, &store.CachedGeocode{
		Hash:      key,
		Latitude:  result.Latitude,
		Longitude: result.Longitude,
		Source:    result.Source,
		Quality:   result.Quality,
		Matched:   result.Matched,
	})
}

func runGeocode(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	limit, _ := cmd.Flags().GetInt("limit")
	pending, err := st.PendingGeocodes(ctx, limit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		zap.L().Info("no stations pending geocode")
		return nil
	}

	opts := []geocode.Option{
		geocode.WithUserAgent(cfg.Scrape.UserAgent),
		geocode.WithRateLimit(cfg.Geocode.NominatimRPS),
		geocode.WithCache(&storeCache{
			store: st,
			ttl:   time.Duration(cfg.Geocode.CacheTTLDays) * 24 * time.Hour,
		}),
	}
	if cfg.Geocode.NominatimURL != "" {
		opts = append(opts, geocode.WithNominatimURL(cfg.Geocode.NominatimURL))
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}
	client := geocode.NewClient(opts...)

	zap.L().Info("geocoding pending stations", zap.Int("count", len(pending)))

	inputs := make([]geocode.AddressInput, len(pending))
	for i, s := range pending {
		inputs[i] = geocode.AddressInput{
			ID:     s.ID,
			Street: s.Address,
			City:   s.City,
			State:  s.State,
		}
	}

	results, err := client.BatchGeocode(ctx, inputs, cfg.Geocode.MaxConcurrent)
	if err != nil {
		return err
	}

	var matched, unmatched, failed int
	for _, br := range results {
		if br.Err != nil {
			// Provider outage, not a bad address. Leave the station pending
			// so the next run retries it.
			failed++
			zap.L().Warn("geocode attempt failed, station stays pending",
				zap.String("station_id", br.Input.ID),
				zap.Error(br.Err))
			continue
		}

		status := model.GeocodeMatched
		if br.Result.Matched {
			matched++
		} else {
			status = model.GeocodeUnmatched
			unmatched++
		}
		if err := st.RecordGeocode(ctx, br.Input.ID, br.Result.Latitude, br.Result.Longitude, status, br.Result.Source, br.Result.Quality); err != nil {
			return err
		}
	}

	zap.L().Info("geocode run complete",
		zap.Int("matched", matched),
		zap.Int("unmatched", unmatched),
		zap.Int("failed", failed),
	)
	return nil
}
