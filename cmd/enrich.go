package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/boundary"
	"github.com/harmattan-labs/cng-atlas/internal/fetcher"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Assign State and LGA from admin boundaries",
	Long: `Fill in missing State and LGA on geocoded stations by point-in-polygon
lookup against the GADM admin boundaries.

Boundaries are downloaded and stored on first use; --reload-boundaries
forces a fresh load.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().Bool("reload-boundaries", false, "Re-download and re-store the boundary shapefiles")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	reload, _ := cmd.Flags().GetBool("reload-boundaries")
	existing, err := st.ListBoundaries(ctx, boundary.LevelLGA)
	if err != nil {
		return err
	}
	if reload || len(existing) == 0 {
		httpf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Scrape.UserAgent,
			Timeout:    scrapeTimeout(),
			MaxRetries: cfg.Scrape.MaxRetries,
		})
		n, err := boundary.Load(ctx, st, httpf, cfg.Boundary.ShapefileURL, cfg.Boundary.CacheDir)
		if err != nil {
			return err
		}
		zap.L().Info("boundary load complete", zap.Int("rows", n))
	}

	_, err = boundary.NewEnricher(st).Run(ctx)
	return err
}
