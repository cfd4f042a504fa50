package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harmattan-labs/cng-atlas/internal/scraper"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a manual station list",
	Long: `Import stations from a curated CSV or XLSX file.

Rows are upserted with source "manual". Rows carrying latitude/longitude
columns are stored pre-matched; the rest join the geocode queue.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringP("file", "f", "", "Path to the CSV or XLSX file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, _ := cmd.Flags().GetString("file")
	stations, err := scraper.ImportFile(ctx, path)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	n, err := st.UpsertStations(ctx, stations)
	if err != nil {
		return err
	}

	zap.L().Info("manual import complete",
		zap.String("file", path),
		zap.Int("stations", n),
	)
	cmd.Printf("imported %d stations from %s\n", n, path)
	return nil
}
