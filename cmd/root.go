package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/config"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cng-atlas",
	Short: "CNG station mapping pipeline for Nigeria",
	Long:  "Scrapes CNG refuelling station listings, geocodes addresses, enriches records with admin boundaries, exports GeoJSON, and serves an interactive map.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore validates the store config and opens the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func scrapeTimeout() time.Duration {
	return time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
