package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/dashboard"
	"github.com/harmattan-labs/cng-atlas/internal/geojson"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the station map dashboard",
	Long: `Start the dashboard web server: an embedded map UI over a JSON API
and a cached basemap tile proxy.

By default stations come from the configured store. With --geojson the
server reads a previously exported file instead and needs no database.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (default: server.port from config)")
	serveCmd.Flags().String("geojson", "", "Serve stations from this GeoJSON file instead of the store")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Server.Port
	}
	geojsonPath, _ := cmd.Flags().GetString("geojson")

	var source dashboard.DataSource
	if geojsonPath != "" {
		stations, err := geojson.ReadFile(geojsonPath)
		if err != nil {
			return err
		}
		zap.L().Info("serving from geojson file",
			zap.String("path", geojsonPath),
			zap.Int("stations", len(stations)),
		)
		source = dashboard.NewStaticSource(stations)
	} else {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		source = dashboard.NewStoreSource(st)
	}

	cache := dashboard.NewTileCache(
		cfg.Server.TileCacheEntries,
		time.Duration(cfg.Server.TileCacheTTLMins)*time.Minute,
	)
	tiles := dashboard.NewTileProxy(cfg.Server.TileUpstream, cache)

	handler := dashboard.NewRouter(dashboard.NewHandlers(source, tiles))
	return dashboard.Serve(ctx, fmt.Sprintf(":%d", port), handler)
}
