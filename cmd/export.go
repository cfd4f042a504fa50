package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harmattan-labs/cng-atlas/internal/geojson"
	"github.com/harmattan-labs/cng-atlas/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the station dataset to a GeoJSON file",
	Long: `Export stations as a GeoJSON FeatureCollection.

Only stations with resolved coordinates are written unless
--include-unmatched is set.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "Output path (default: export.path from config)")
	exportCmd.Flags().Bool("include-unmatched", false, "Include stations without coordinates as null-geometry features")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Export.Path
	}
	includeUnmatched, _ := cmd.Flags().GetBool("include-unmatched")

	stations, err := st.ListStations(ctx, store.StationFilter{})
	if err != nil {
		return err
	}

	n, err := geojson.WriteFile(out, stations, geojson.BuildOptions{IncludeUnmatched: includeUnmatched})
	if err != nil {
		return err
	}

	cmd.Printf("wrote %d features to %s\n", n, out)
	return nil
}
